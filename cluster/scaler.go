package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance. It is fit once
// and then applied unchanged to every matrix scored against the same model.
type Scaler struct {
	Features []string  `json:"features,omitempty"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// FitScaler learns per-column mean and population standard deviation.
// Constant columns get a scale of 1 so they transform to 0.
func FitScaler(X [][]float64, features []string) (*Scaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fitting scaler: %w", ErrDegenerateInput)
	}
	r, c := len(X), len(X[0])
	if c == 0 {
		return nil, fmt.Errorf("fitting scaler: %w", ErrNoFeatures)
	}

	s := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, c),
		Scale:    make([]float64, c),
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			col[i] = X[i][j]
		}
		s.Mean[j], s.Scale[j] = stat.PopMeanStdDev(col, nil)
		if s.Scale[j] == 0 || math.IsNaN(s.Scale[j]) {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

// Dims returns the number of features the scaler was fit on
func (s *Scaler) Dims() int { return len(s.Mean) }

// Transform returns a scaled copy of X. It never refits.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow scales a single feature vector.
func (s *Scaler) TransformRow(x []float64) ([]float64, error) {
	if len(x) != s.Dims() {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", ErrArtifactIncompatible, s.Dims(), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}
