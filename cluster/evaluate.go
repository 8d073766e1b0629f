package cluster

import (
	"errors"
	"fmt"
)

// Evaluation is the fit quality for one cluster count.
type Evaluation struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
	Scores  *Scores `json:"scores,omitempty"`
	Sizes   []int   `json:"sizes"`
	Warning string  `json:"warning,omitempty"`
}

// EvaluateRange fits an ad-hoc scaler and model for every k in
// [opts.MinK, opts.MaxK] and scores each labeling. Cluster counts larger than
// the row count are skipped.
func EvaluateRange(t *Table, features []string, opts FitOptions) ([]Evaluation, error) {
	opts = opts.withDefaults()
	p, err := NewPipeline(nil, nil, opts)
	if err != nil {
		return nil, err
	}

	var out []Evaluation
	for k := opts.MinK; k <= opts.MaxK && k <= t.Len(); k++ {
		res, err := p.Run(t, features, RunOptions{K: k, Score: true})
		if err != nil {
			return nil, fmt.Errorf("evaluating k=%d: %w", k, err)
		}
		ev := Evaluation{K: k, Inertia: res.Inertia, Scores: res.Scores, Sizes: res.Sizes}
		if len(res.Warnings) > 0 {
			ev.Warning = res.Warnings[0]
		}
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d rows, need at least %d", ErrDegenerateInput, t.Len(), opts.MinK)
	}
	return out, nil
}

// BestBySilhouette returns the evaluation with the highest mean silhouette.
// Entries without scores are ignored.
func BestBySilhouette(evals []Evaluation) (Evaluation, error) {
	best := -1
	for i, ev := range evals {
		if ev.Scores == nil {
			continue
		}
		if best < 0 || ev.Scores.Silhouette > evals[best].Scores.Silhouette {
			best = i
		}
	}
	if best < 0 {
		return Evaluation{}, errors.New("no scored cluster count")
	}
	return evals[best], nil
}
