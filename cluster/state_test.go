package cluster

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TableResolvesAndLoadsOnce(t *testing.T) {
	cfg := DefaultConfig()
	loads := 0
	s := &Store{config: cfg}
	s.loadTable = func() (*Table, error) {
		loads++
		return mustReadCSV(t, incidentsCSV), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Table()
		}()
	}
	wg.Wait()

	tbl, err := s.Table()
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assert.Equal(t, []string{"Jenis_Bencana", "Wilayah", "Jumlah_Kejadian", "Korban"}, tbl.Columns)

	col, _ := tbl.Column("Jenis_Bencana")
	assert.Equal(t, "longsor tanah", col[1], "disaster types are lower-cased")
	assert.Equal(t, "Jenis_Bencana", s.Resolution().Mapping["Jenis_Bencana_2022"])
}

func TestStore_TableError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.Path = filepath.Join(t.TempDir(), "missing.csv")
	s := NewStore(cfg)

	_, err := s.Table()
	assert.Error(t, err)
	_, err = s.Features()
	assert.Error(t, err)
}

func TestStore_FeaturesPrecedence(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV)

	cfg := DefaultConfig()
	s := NewStoreWithTable(cfg, tbl, nil)
	features, err := s.Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"Jumlah_Kejadian"}, features, "Korban has a non-numeric cell")

	cfg = DefaultConfig()
	cfg.Features = []string{"Korban"}
	features, err = NewStoreWithTable(cfg, tbl, nil).Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"Korban"}, features)

	scaler := &Scaler{Features: []string{"Korban"}, Mean: []float64{0}, Scale: []float64{1}}
	model := &Model{Centroids: [][]float64{{0}, {1}}}
	features, err = NewStoreWithTable(DefaultConfig(), tbl, &Artifacts{Scaler: scaler, Model: model}).Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"Korban"}, features)
}

func TestStore_Pipeline(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV)

	// no artifacts: ad hoc
	s := NewStoreWithTable(DefaultConfig(), tbl, nil)
	p, err := s.Pipeline()
	require.NoError(t, err)
	assert.False(t, p.Pretrained())

	_, err = s.PretrainedPipeline()
	assert.ErrorIs(t, err, ErrArtifactMissing)

	// loaded artifacts are used
	a := &Artifacts{
		Scaler: &Scaler{Mean: []float64{0}, Scale: []float64{1}},
		Model:  &Model{Centroids: [][]float64{{0}, {1}}},
	}
	s = NewStoreWithTable(DefaultConfig(), tbl, a)
	p, err = s.Pipeline()
	require.NoError(t, err)
	assert.True(t, p.Pretrained())
	assert.False(t, s.AdHocPipeline().Pretrained())
}

func TestStore_BrokenArtifactsAreAnError(t *testing.T) {
	s := NewStoreWithTable(DefaultConfig(), mustReadCSV(t, incidentsCSV), nil)
	broken := errors.New("boom")
	s.loadArtifacts = func() (*Artifacts, error) { return nil, broken }

	_, err := s.Pipeline()
	assert.ErrorIs(t, err, broken)
}

func TestNewStore_ArtifactsFromDisk(t *testing.T) {
	scaler, model, _ := trainedPair(t)
	dir := t.TempDir()
	scalerPath, modelPath, err := SaveArtifacts(dir, scaler, model)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Data.Path = writeFile(t, "incidents.csv", incidentsCSV)
	cfg.Artifacts = ArtifactsConfig{Scaler: scalerPath, Model: modelPath}

	a, err := NewStore(cfg).Artifacts()
	require.NoError(t, err)
	assert.Equal(t, 3, a.Model.K())

	cfg.Artifacts = ArtifactsConfig{}
	_, err = NewStore(cfg).Artifacts()
	assert.ErrorIs(t, err, ErrArtifactMissing)
}
