package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Projection holds each row's coordinates on the first two principal axes.
// It is for display only and never feeds back into assignment.
type Projection struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
	// Explained is the fraction of total variance carried by each axis.
	Explained [2]float64 `json:"explained"`
}

// Project2D projects the rows of X onto their two directions of maximal
// variance. Each axis is sign-normalized so its largest loading is positive,
// which keeps the output stable across runs. With a single feature the
// second axis is all zeros.
func Project2D(X [][]float64) (*Projection, error) {
	n := len(X)
	if n < 2 {
		return nil, fmt.Errorf("projecting %d rows: %w", n, ErrDegenerateInput)
	}
	d := len(X[0])
	if d == 0 {
		return nil, ErrNoFeatures
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range X {
		data.SetRow(i, row)
	}

	// Center columns before projecting
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, data)
		mean := stat.Mean(col, nil)
		for i := range col {
			col[i] -= mean
		}
		data.SetCol(j, col)
	}

	proj := &Projection{X: make([]float64, n), Y: make([]float64, n)}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("%w: principal component decomposition failed", ErrDegenerateInput)
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	total := 0.0
	for _, v := range vars {
		total += v
	}

	_, nc := vecs.Dims()
	axes := nc
	if axes > 2 {
		axes = 2
	}

	for a := 0; a < axes; a++ {
		axis := mat.Col(nil, a, &vecs)
		flipSign(axis)

		var scores mat.VecDense
		scores.MulVec(data, mat.NewVecDense(d, axis))

		dst := proj.X
		if a == 1 {
			dst = proj.Y
		}
		for i := 0; i < n; i++ {
			dst[i] = scores.AtVec(i)
		}
		if total > 0 && a < len(vars) {
			proj.Explained[a] = vars[a] / total
		}
	}

	return proj, nil
}

// flipSign negates v in place if its largest-magnitude entry is negative.
func flipSign(v []float64) {
	maxAbs, idx := -1.0, 0
	for i, x := range v {
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
			idx = i
		}
	}
	if v[idx] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}
