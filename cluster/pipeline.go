package cluster

import (
	"errors"
	"fmt"
	"log"
	"strconv"
)

// LabelColumn is the column appended to labeled tables
const LabelColumn = "Cluster"

// ValidateFeatures checks that every feature name is a column of t. The
// returned *MissingColumnsError lists all missing names.
func ValidateFeatures(t *Table, features []string) error {
	if len(features) == 0 {
		return ErrNoFeatures
	}
	var missing []string
	for _, f := range features {
		if !t.HasColumn(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// Prepare selects the feature columns as a numeric matrix. Cells that do not
// parse as finite numbers become 0. Unknown columns also read as 0, so callers
// must run ValidateFeatures first.
func Prepare(t *Table, features []string) [][]float64 {
	idx := make([]int, len(features))
	for j, f := range features {
		idx[j] = t.Index(f)
	}

	out := make([][]float64, len(t.Rows))
	for i, row := range t.Rows {
		vec := make([]float64, len(features))
		for j, c := range idx {
			if c < 0 {
				continue
			}
			if v, ok := parseNumber(row[c]); ok {
				vec[j] = v
			}
		}
		out[i] = vec
	}
	return out
}

// RunOptions selects what a pipeline run computes.
type RunOptions struct {
	K       int  // used only when the pipeline has no model
	Project bool // compute the 2D projection
	Score   bool // compute quality scores
}

// Result is the request-scoped output of one pipeline run.
type Result struct {
	Features   []string    `json:"features"`
	Labels     []int       `json:"labels"`
	K          int         `json:"k"`
	Sizes      []int       `json:"sizes"`
	Inertia    float64     `json:"inertia"`
	Projection *Projection `json:"projection,omitempty"`
	Scores     *Scores     `json:"scores,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	// Pretrained is true when the loaded scaler and model were used.
	Pretrained bool `json:"pretrained"`

	Scaled [][]float64 `json:"-"`
	table  *Table
}

// Pipeline binds an optional pre-trained scaler and model to fit options.
// When Scaler and Model are both nil, every run fits its own pair on the
// table it is given; the pair is discarded with the Result.
type Pipeline struct {
	Scaler  *Scaler
	Model   *Model
	Options FitOptions
}

// NewPipeline returns a pipeline. scaler and model must be both set or both nil.
func NewPipeline(scaler *Scaler, model *Model, opts FitOptions) (*Pipeline, error) {
	if (scaler == nil) != (model == nil) {
		return nil, fmt.Errorf("%w: scaler and model must be provided together", ErrArtifactIncompatible)
	}
	if scaler != nil && scaler.Dims() != model.Dims() {
		return nil, fmt.Errorf("%w: scaler has %d features, model has %d",
			ErrArtifactIncompatible, scaler.Dims(), model.Dims())
	}
	return &Pipeline{Scaler: scaler, Model: model, Options: opts.withDefaults()}, nil
}

// Pretrained reports whether the pipeline carries a loaded scaler and model
func (p *Pipeline) Pretrained() bool { return p.Scaler != nil && p.Model != nil }

// Run validates, prepares, scales and assigns t, then optionally projects and
// scores. Schema, cluster count and artifact errors stop the run. Too few rows
// for a step is recorded as a warning and that step and the ones depending on
// it are skipped.
func (p *Pipeline) Run(t *Table, features []string, opts RunOptions) (*Result, error) {
	if err := ValidateFeatures(t, features); err != nil {
		return nil, err
	}
	if p.Pretrained() {
		if err := CheckCompatible(p.Scaler, p.Model, features); err != nil {
			return nil, err
		}
	}

	raw := Prepare(t, features)
	res := &Result{Features: append([]string(nil), features...), table: t, Pretrained: p.Pretrained()}

	scaler, model := p.Scaler, p.Model
	if scaler == nil {
		if err := p.Options.checkK(opts.K); err != nil {
			return nil, err
		}
		// Too few rows leaves the result unlabeled instead of failing the run
		if n := len(raw); n < 2 || n < opts.K {
			res.K = opts.K
			res.Labels = []int{}
			if n < 2 {
				res.warn("clustering skipped: %d rows, need at least 2", n)
			} else {
				res.warn("clustering skipped: %d rows for %d clusters", n, opts.K)
			}
			return res, nil
		}
		var err error
		if scaler, err = FitScaler(raw, features); err != nil {
			return nil, err
		}
	}

	scaled, err := scaler.Transform(raw)
	if err != nil {
		return nil, err
	}
	res.Scaled = scaled

	if model == nil {
		if model, err = Fit(scaled, opts.K, p.Options); err != nil {
			return nil, err
		}
		model.Features = append([]string(nil), features...)
	}

	if res.Labels, err = model.Assign(scaled); err != nil {
		return nil, err
	}
	res.K = model.K()
	res.Sizes = make([]int, res.K)
	for i, l := range res.Labels {
		res.Sizes[l]++
		res.Inertia += euclidSquared(scaled[i], model.Centroids[l])
	}

	if opts.Project {
		proj, err := Project2D(scaled)
		switch {
		case errors.Is(err, ErrDegenerateInput):
			res.warn("projection skipped: %v", err)
		case err != nil:
			return nil, err
		default:
			res.Projection = proj
		}
	}

	if opts.Score {
		scores, err := Score(scaled, res.Labels)
		switch {
		case errors.Is(err, ErrInsufficientClusters):
			res.warn("scores skipped: %v", err)
		case err != nil:
			return nil, err
		default:
			res.Scores = scores
		}
	}

	return res, nil
}

func (r *Result) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[PIPELINE] warning: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// Labeled returns a copy of the source table with the Cluster column appended.
// Rows of an unlabeled result get an empty label.
func (r *Result) Labeled() *Table {
	values := make([]string, r.table.Len())
	for i, l := range r.Labels {
		values[i] = strconv.Itoa(l)
	}
	out, err := r.table.WithColumn(LabelColumn, values)
	if err != nil {
		// values always matches the row count of the source table
		panic(err)
	}
	return out
}
