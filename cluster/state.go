package cluster

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Store holds the session-wide read-only inputs: the resolved incident table
// and the optional pre-trained artifacts. Each is loaded at most once, on
// first use, and never modified afterwards. Per-request results are never
// stored here.
type Store struct {
	config *Config

	loadTable     func() (*Table, error)
	loadArtifacts func() (*Artifacts, error)

	tableOnce  sync.Once
	table      *Table
	resolution Resolution
	tableErr   error

	artOnce   sync.Once
	artifacts *Artifacts
	artErr    error
}

// NewStore creates a store that reads the table and artifacts named in config.
func NewStore(config *Config) *Store {
	s := &Store{config: config}
	s.loadTable = func() (*Table, error) {
		return LoadTable(config.Data.Path, config.Delimiter())
	}
	s.loadArtifacts = func() (*Artifacts, error) {
		if !config.HasArtifacts() {
			return nil, fmt.Errorf("%w: no artifact paths configured", ErrArtifactMissing)
		}
		return LoadArtifacts(config.Artifacts.Scaler, config.Artifacts.Model)
	}
	return s
}

// NewStoreWithTable creates a store around an in-memory table. artifacts may
// be nil, in which case every pipeline fits ad hoc.
func NewStoreWithTable(config *Config, t *Table, artifacts *Artifacts) *Store {
	s := &Store{config: config}
	s.loadTable = func() (*Table, error) { return t, nil }
	s.loadArtifacts = func() (*Artifacts, error) {
		if artifacts == nil {
			return nil, fmt.Errorf("%w: no artifacts provided", ErrArtifactMissing)
		}
		return artifacts, nil
	}
	return s
}

// Config returns the configuration the store was built from
func (s *Store) Config() *Config { return s.config }

// Table returns the incident table with canonical column names and
// lower-cased disaster types. Callers must not modify it.
func (s *Store) Table() (*Table, error) {
	s.tableOnce.Do(func() {
		raw, err := s.loadTable()
		if err != nil {
			s.tableErr = fmt.Errorf("loading table: %w", err)
			return
		}

		cols := s.config.Columns
		s.resolution = ResolveColumns(raw.Columns, []ColumnTarget{cols.DisasterType, cols.Region})
		for actual, canonical := range s.resolution.Mapping {
			log.Printf("Column %q resolved to %s", actual, canonical)
		}
		for _, name := range s.resolution.Unresolved {
			log.Printf("Warning: no column matches %s, using columns as-is", name)
		}

		t := ApplyResolution(raw, s.resolution)
		s.table = t.LowerColumn(cols.DisasterType.Name)
		log.Printf("Loaded table: %d rows, %d columns", s.table.Len(), len(s.table.Columns))
	})
	return s.table, s.tableErr
}

// Resolution returns the column mapping applied when the table was loaded
func (s *Store) Resolution() Resolution {
	_, _ = s.Table()
	return s.resolution
}

// Artifacts returns the pre-trained scaler/model pair, or the load error.
func (s *Store) Artifacts() (*Artifacts, error) {
	s.artOnce.Do(func() {
		s.artifacts, s.artErr = s.loadArtifacts()
		switch {
		case s.artErr == nil:
			log.Printf("Loaded artifacts: k=%d, %d features", s.artifacts.Model.K(), s.artifacts.Model.Dims())
		case errors.Is(s.artErr, ErrArtifactMissing):
			log.Printf("No pre-trained artifacts (%v); clustering will fit per request", s.artErr)
		default:
			log.Printf("Warning: failed to load artifacts: %v", s.artErr)
		}
	})
	return s.artifacts, s.artErr
}

// Features returns the feature set for clustering: the configured list, else
// the names recorded in the artifacts, else every numeric column.
func (s *Store) Features() ([]string, error) {
	if len(s.config.Features) > 0 {
		return append([]string(nil), s.config.Features...), nil
	}
	if a, err := s.Artifacts(); err == nil {
		if f := a.Features(); len(f) > 0 {
			return f, nil
		}
	}
	t, err := s.Table()
	if err != nil {
		return nil, err
	}
	features := t.NumericColumns()
	if len(features) == 0 {
		return nil, ErrNoFeatures
	}
	return features, nil
}

// Pipeline returns a pipeline using the pre-trained artifacts when they load
// cleanly and a per-request ad-hoc pipeline when none are present. Artifacts
// that exist but fail to load are an error, never a silent fallback.
func (s *Store) Pipeline() (*Pipeline, error) {
	a, err := s.Artifacts()
	switch {
	case err == nil:
		return NewPipeline(a.Scaler, a.Model, s.config.Clustering)
	case errors.Is(err, ErrArtifactMissing):
		return NewPipeline(nil, nil, s.config.Clustering)
	default:
		return nil, err
	}
}

// AdHocPipeline returns a pipeline that always fits on the table it runs on,
// used when the user picks the cluster count.
func (s *Store) AdHocPipeline() *Pipeline {
	p, _ := NewPipeline(nil, nil, s.config.Clustering)
	return p
}

// PretrainedPipeline requires loaded artifacts; views that depend on them
// (prediction) must halt on its error.
func (s *Store) PretrainedPipeline() (*Pipeline, error) {
	a, err := s.Artifacts()
	if err != nil {
		return nil, err
	}
	return NewPipeline(a.Scaler, a.Model, s.config.Clustering)
}
