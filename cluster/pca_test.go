package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject2D_Line(t *testing.T) {
	// All variance lies along (1, 1).
	X := [][]float64{{-2, -2}, {-1, -1}, {0, 0}, {1, 1}, {2, 2}}

	p, err := Project2D(X)
	require.NoError(t, err)
	require.Len(t, p.X, 5)
	require.Len(t, p.Y, 5)

	for i := range X {
		want := float64(i-2) * math.Sqrt2
		assert.InDelta(t, want, p.X[i], 1e-9)
		assert.InDelta(t, 0, p.Y[i], 1e-9)
	}
	assert.InDelta(t, 1.0, p.Explained[0], 1e-9)
	assert.InDelta(t, 0.0, p.Explained[1], 1e-9)
}

func TestProject2D_SingleFeature(t *testing.T) {
	p, err := Project2D([][]float64{{1}, {3}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 1}, p.X, 1e-9)
	assert.Equal(t, []float64{0, 0}, p.Y)
}

func TestProject2D_Deterministic(t *testing.T) {
	X := threeBlobs()
	a, err := Project2D(X)
	require.NoError(t, err)
	b, err := Project2D(X)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProject2D_TooFewRows(t *testing.T) {
	_, err := Project2D([][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestFlipSign(t *testing.T) {
	v := []float64{0.2, -0.9, 0.1}
	flipSign(v)
	assert.Equal(t, []float64{-0.2, 0.9, -0.1}, v)

	v = []float64{0.6, 0.8}
	flipSign(v)
	assert.Equal(t, []float64{0.6, 0.8}, v)
}
