package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// FitOptions controls K-Means fitting.
type FitOptions struct {
	MinK    int     `yaml:"minK" json:"minK"`
	MaxK    int     `yaml:"maxK" json:"maxK"`
	Seed    int64   `yaml:"seed" json:"seed"`
	MaxIter int     `yaml:"maxIter" json:"maxIter"`
	NInit   int     `yaml:"nInit" json:"nInit"`
	Tol     float64 `yaml:"tol" json:"tol"`
}

// DefaultFitOptions returns the defaults used when config leaves fields empty:
// k in [2, 5], seed 42, 300 iterations, 10 restarts.
func DefaultFitOptions() FitOptions {
	return FitOptions{MinK: 2, MaxK: 5, Seed: 42, MaxIter: 300, NInit: 10, Tol: 1e-4}
}

func (o FitOptions) withDefaults() FitOptions {
	d := DefaultFitOptions()
	if o.MinK <= 0 {
		o.MinK = d.MinK
	}
	if o.MaxK <= 0 {
		o.MaxK = d.MaxK
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.NInit <= 0 {
		o.NInit = d.NInit
	}
	if o.Tol <= 0 {
		o.Tol = d.Tol
	}
	return o
}

// checkK reports whether k lies in [MinK, MaxK]
func (o FitOptions) checkK(k int) error {
	o = o.withDefaults()
	if k < o.MinK || k > o.MaxK {
		return fmt.Errorf("%w: k=%d, allowed %d..%d", ErrInvalidK, k, o.MinK, o.MaxK)
	}
	return nil
}

// Model is a fitted set of centroids in scaled feature space. Label i is the
// index of Centroids[i].
type Model struct {
	Features   []string    `json:"features,omitempty"`
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"` // Sum of squared distances to nearest centroid
	Iterations int         `json:"iterations"`
	Seed       int64       `json:"seed"`
}

// K returns the number of clusters
func (m *Model) K() int { return len(m.Centroids) }

// Dims returns the dimensionality of the centroids
func (m *Model) Dims() int {
	if len(m.Centroids) == 0 {
		return 0
	}
	return len(m.Centroids[0])
}

// Fit partitions the rows of X into k clusters with k-means++ seeding and
// Lloyd iterations, keeping the best of NInit restarts by inertia. The random
// source is seeded from opts.Seed so the result is reproducible.
func Fit(X [][]float64, k int, opts FitOptions) (*Model, error) {
	opts = opts.withDefaults()
	if err := opts.checkK(k); err != nil {
		return nil, err
	}
	if len(X) < k {
		return nil, fmt.Errorf("%w: %d rows for %d clusters", ErrDegenerateInput, len(X), k)
	}
	if len(X[0]) == 0 {
		return nil, ErrNoFeatures
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	var best *Model
	for run := 0; run < opts.NInit; run++ {
		centroids := initCenters(X, k, rng)
		m := lloyd(X, centroids, opts.MaxIter, opts.Tol)
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	best.Seed = opts.Seed
	return best, nil
}

// lloyd runs assignment/update steps until labels stop changing, the centroid
// shift falls below tol, or maxIter is reached.
func lloyd(X [][]float64, centroids [][]float64, maxIter int, tol float64) *Model {
	n, p, k := len(X), len(X[0]), len(centroids)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	iters := 0
	for it := 0; it < maxIter; it++ {
		iters = it + 1

		changed := false
		for i := 0; i < n; i++ {
			best := nearest(X[i], centroids)
			if assign[i] != best {
				changed = true
			}
			assign[i] = best
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := 0; c < k; c++ {
			sums[c] = make([]float64, p)
		}
		for i := 0; i < n; i++ {
			c := assign[i]
			counts[c]++
			for j := 0; j < p; j++ {
				sums[c][j] += X[i][j]
			}
		}

		shift := 0.0
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			for j := 0; j < p; j++ {
				v := sums[c][j] / float64(counts[c])
				d := v - centroids[c][j]
				shift += d * d
				centroids[c][j] = v
			}
		}
		if shift <= tol*tol {
			break
		}
	}

	inertia := 0.0
	for i := 0; i < n; i++ {
		c := nearest(X[i], centroids)
		inertia += euclidSquared(X[i], centroids[c])
	}
	return &Model{Centroids: centroids, Inertia: inertia, Iterations: iters}
}

// initCenters picks k starting centroids with k-means++: the first uniformly,
// each next one with probability proportional to its squared distance from the
// closest centroid chosen so far.
func initCenters(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), X[rng.Intn(n)]...))

	distSq := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, x := range X {
			minDist := math.MaxFloat64
			for _, c := range centroids {
				if d2 := euclidSquared(x, c); d2 < minDist {
					minDist = d2
				}
			}
			distSq[i] = minDist
			total += minDist
		}

		// All remaining points coincide with a centroid.
		if total == 0 {
			centroids = append(centroids, append([]float64(nil), X[rng.Intn(n)]...))
			continue
		}

		r := rng.Float64() * total
		cumulative := 0.0
		picked := -1
		for i, d2 := range distSq {
			if d2 == 0 {
				continue
			}
			cumulative += d2
			picked = i
			if cumulative >= r {
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), X[picked]...))
	}
	return centroids
}

// Assign returns the index of the nearest centroid for each row. Rows are
// split across workers; each row's result only depends on that row.
func (m *Model) Assign(X [][]float64) ([]int, error) {
	if m.K() == 0 {
		return nil, fmt.Errorf("%w: model has no centroids", ErrArtifactIncompatible)
	}
	for i, row := range X {
		if len(row) != m.Dims() {
			return nil, fmt.Errorf("%w: row %d has %d features, model expects %d",
				ErrArtifactIncompatible, i, len(row), m.Dims())
		}
	}

	n := len(X)
	labels := make([]int, n)
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				labels[i] = nearest(X[i], m.Centroids)
			}
		}(start, end)
	}
	wg.Wait()

	return labels, nil
}

// PredictOne scales a single raw feature vector with scaler and returns the
// label of its nearest centroid, using the same rule as Assign.
func PredictOne(values []float64, scaler *Scaler, model *Model) (int, error) {
	if scaler == nil || model == nil {
		return 0, fmt.Errorf("%w: prediction requires a fitted scaler and model", ErrArtifactMissing)
	}
	if scaler.Dims() != model.Dims() {
		return 0, fmt.Errorf("%w: scaler has %d features, model has %d",
			ErrArtifactIncompatible, scaler.Dims(), model.Dims())
	}
	scaled, err := scaler.TransformRow(values)
	if err != nil {
		return 0, err
	}
	labels, err := model.Assign([][]float64{scaled})
	if err != nil {
		return 0, err
	}
	return labels[0], nil
}

// nearest returns the closest centroid index; ties go to the lowest index.
func nearest(x []float64, centroids [][]float64) int {
	best, bestDist := 0, math.MaxFloat64
	for c, centroid := range centroids {
		if d := euclidSquared(x, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func euclidSquared(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
