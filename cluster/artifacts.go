package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default artifact file names, relative to the artifacts directory
const (
	DefaultScalerFile = "scaler.json"
	DefaultModelFile  = "kmeans_model.json"
)

// Artifacts is a pre-trained scaler/model pair. Both are read-only once loaded.
type Artifacts struct {
	Scaler    *Scaler   `json:"-"`
	Model     *Model    `json:"-"`
	TrainedAt time.Time `json:"-"`
}

type scalerFile struct {
	Scaler
	SavedAt int64 `json:"savedAt"`
}

type modelFile struct {
	Model
	SavedAt int64 `json:"savedAt"`
}

// LoadArtifacts reads the scaler and model blobs and checks they agree with
// each other. A missing file yields ErrArtifactMissing; anything unreadable or
// inconsistent yields ErrArtifactIncompatible.
func LoadArtifacts(scalerPath, modelPath string) (*Artifacts, error) {
	var sf scalerFile
	if err := readArtifact(scalerPath, &sf); err != nil {
		return nil, err
	}
	var mf modelFile
	if err := readArtifact(modelPath, &mf); err != nil {
		return nil, err
	}

	scaler, model := sf.Scaler, mf.Model
	if len(scaler.Mean) == 0 || len(scaler.Mean) != len(scaler.Scale) {
		return nil, fmt.Errorf("%w: scaler %s has inconsistent parameters", ErrArtifactIncompatible, scalerPath)
	}
	for j, s := range scaler.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: scaler %s has zero scale for feature %d", ErrArtifactIncompatible, scalerPath, j)
		}
	}
	if model.K() == 0 {
		return nil, fmt.Errorf("%w: model %s has no centroids", ErrArtifactIncompatible, modelPath)
	}
	for c, centroid := range model.Centroids {
		if len(centroid) != model.Dims() {
			return nil, fmt.Errorf("%w: model %s centroid %d has %d values, want %d",
				ErrArtifactIncompatible, modelPath, c, len(centroid), model.Dims())
		}
	}
	if scaler.Dims() != model.Dims() {
		return nil, fmt.Errorf("%w: scaler has %d features, model has %d",
			ErrArtifactIncompatible, scaler.Dims(), model.Dims())
	}

	return &Artifacts{Scaler: &scaler, Model: &model, TrainedAt: time.Unix(mf.SavedAt, 0)}, nil
}

func readArtifact(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return fmt.Errorf("reading artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrArtifactIncompatible, path, err)
	}
	return nil
}

// SaveArtifacts writes the scaler and model into dir using the default file names.
func SaveArtifacts(dir string, scaler *Scaler, model *Model) (scalerPath, modelPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("creating artifacts directory: %w", err)
	}
	scalerPath = filepath.Join(dir, DefaultScalerFile)
	modelPath = filepath.Join(dir, DefaultModelFile)
	if err := SaveArtifactFiles(scalerPath, modelPath, scaler, model); err != nil {
		return "", "", err
	}
	return scalerPath, modelPath, nil
}

// SaveArtifactFiles writes the scaler and model to explicit paths.
func SaveArtifactFiles(scalerPath, modelPath string, scaler *Scaler, model *Model) error {
	now := time.Now().Unix()
	if err := writeArtifact(scalerPath, scalerFile{Scaler: *scaler, SavedAt: now}); err != nil {
		return err
	}
	return writeArtifact(modelPath, modelFile{Model: *model, SavedAt: now})
}

func writeArtifact(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}

// CheckCompatible verifies that the scaler and model were trained on exactly
// this feature set. Artifacts without recorded feature names are checked on
// dimensionality only.
func CheckCompatible(scaler *Scaler, model *Model, features []string) error {
	if scaler.Dims() != len(features) || model.Dims() != len(features) {
		return fmt.Errorf("%w: artifacts expect %d features, got %d (%v)",
			ErrArtifactIncompatible, scaler.Dims(), len(features), features)
	}
	for _, names := range [][]string{scaler.Features, model.Features} {
		if len(names) == 0 {
			continue
		}
		if len(names) != len(features) {
			return fmt.Errorf("%w: artifacts record %d feature names, got %d",
				ErrArtifactIncompatible, len(names), len(features))
		}
		for j := range features {
			if names[j] != features[j] {
				return fmt.Errorf("%w: artifact feature %d is %q, table feature is %q",
					ErrArtifactIncompatible, j, names[j], features[j])
			}
		}
	}
	return nil
}

// Features returns the feature names recorded in the artifacts, if any.
func (a *Artifacts) Features() []string {
	if len(a.Scaler.Features) > 0 {
		return append([]string(nil), a.Scaler.Features...)
	}
	return append([]string(nil), a.Model.Features...)
}
