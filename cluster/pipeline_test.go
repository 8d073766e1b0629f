package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoIncidentTable() *Table {
	return &Table{
		Columns: []string{"type", "region", "count"},
		Rows: [][]string{
			{"banjir", "A", "5"},
			{"longsor", "B", "50"},
		},
	}
}

func TestValidateFeatures(t *testing.T) {
	tbl := twoIncidentTable()

	tests := []struct {
		name        string
		features    []string
		wantMissing []string
		wantErr     error
	}{
		{name: "all present", features: []string{"count", "type"}},
		{name: "one missing", features: []string{"count", "victims"}, wantMissing: []string{"victims"}},
		{name: "all missing", features: []string{"a", "b"}, wantMissing: []string{"a", "b"}},
		{name: "case matters", features: []string{"Count"}, wantMissing: []string{"Count"}},
		{name: "empty", features: nil, wantErr: ErrNoFeatures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeatures(tbl, tt.features)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantMissing != nil:
				var mce *MissingColumnsError
				require.ErrorAs(t, err, &mce)
				assert.Equal(t, tt.wantMissing, mce.Missing)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrepare_CoercesToZero(t *testing.T) {
	tbl := &Table{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1.5", "x"},
			{" 2 ", ""},
			{"NaN", "-3"},
			{"Inf", "1e3"},
		},
	}

	want := [][]float64{{1.5, 0}, {2, 0}, {0, -3}, {0, 1000}}
	assert.Equal(t, want, Prepare(tbl, []string{"a", "b"}))
	assert.Equal(t, Prepare(tbl, []string{"b", "a"}), Prepare(tbl, []string{"b", "a"}))
}

func TestPipelineRun_TwoRows(t *testing.T) {
	p, err := NewPipeline(nil, nil, DefaultFitOptions())
	require.NoError(t, err)

	res, err := p.Run(twoIncidentTable(), []string{"count"}, RunOptions{K: 2, Project: true, Score: true})
	require.NoError(t, err)

	assert.Len(t, res.Labels, 2)
	assert.NotEqual(t, res.Labels[0], res.Labels[1])
	assert.Equal(t, []int{1, 1}, res.Sizes)
	assert.False(t, res.Pretrained)

	require.NotNil(t, res.Scores)
	assert.False(t, math.IsNaN(res.Scores.Cohesion) || math.IsInf(res.Scores.Cohesion, 0))
	assert.GreaterOrEqual(t, res.Scores.Cohesion, 0.0)
	require.NotNil(t, res.Projection)
	assert.Len(t, res.Projection.X, 2)
	assert.Empty(t, res.Warnings)
}

func TestPipelineRun_MissingColumnStopsEarly(t *testing.T) {
	p, _ := NewPipeline(nil, nil, DefaultFitOptions())

	res, err := p.Run(twoIncidentTable(), []string{"count", "victims"}, RunOptions{K: 2, Score: true})
	assert.Nil(t, res)
	var mce *MissingColumnsError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{"victims"}, mce.Missing)
}

func TestPipelineRun_TooFewRowsWarns(t *testing.T) {
	p, _ := NewPipeline(nil, nil, DefaultFitOptions())

	tests := []struct {
		name        string
		tbl         *Table
		k           int
		wantWarning string
	}{
		{
			name:        "one row",
			tbl:         &Table{Columns: []string{"count"}, Rows: [][]string{{"3"}}},
			k:           3,
			wantWarning: "1 rows, need at least 2",
		},
		{
			name:        "fewer rows than clusters",
			tbl:         twoIncidentTable(),
			k:           3,
			wantWarning: "2 rows for 3 clusters",
		},
		{
			name:        "no rows",
			tbl:         &Table{Columns: []string{"count"}},
			k:           2,
			wantWarning: "0 rows, need at least 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Run(tt.tbl, []string{"count"}, RunOptions{K: tt.k, Project: true, Score: true})
			require.NoError(t, err)

			assert.Empty(t, res.Labels)
			assert.Nil(t, res.Sizes)
			assert.Nil(t, res.Projection)
			assert.Nil(t, res.Scores)
			assert.Equal(t, tt.k, res.K)
			require.Len(t, res.Warnings, 1)
			assert.Contains(t, res.Warnings[0], tt.wantWarning)

			labeled := res.Labeled()
			col, ok := labeled.Column(LabelColumn)
			require.True(t, ok)
			assert.Len(t, col, tt.tbl.Len())
			for _, v := range col {
				assert.Empty(t, v)
			}
		})
	}
}

func TestPipelineRun_InvalidKStillFails(t *testing.T) {
	p, _ := NewPipeline(nil, nil, DefaultFitOptions())

	_, err := p.Run(twoIncidentTable(), []string{"count"}, RunOptions{K: 9})
	assert.ErrorIs(t, err, ErrInvalidK)

	one := &Table{Columns: []string{"count"}, Rows: [][]string{{"3"}}}
	_, err = p.Run(one, []string{"count"}, RunOptions{K: 1})
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestPipelineRun_PretrainedOneRow(t *testing.T) {
	scaler := &Scaler{Features: []string{"count"}, Mean: []float64{10}, Scale: []float64{5}}
	model := &Model{Features: []string{"count"}, Centroids: [][]float64{{-1}, {1}}}
	p, err := NewPipeline(scaler, model, DefaultFitOptions())
	require.NoError(t, err)

	one := &Table{Columns: []string{"count"}, Rows: [][]string{{"15"}}}
	res, err := p.Run(one, []string{"count"}, RunOptions{Project: true, Score: true})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Labels)
	assert.Nil(t, res.Projection)
	assert.Nil(t, res.Scores)
	assert.Len(t, res.Warnings, 2, "projection and scores are both skipped")
}

func TestPipelineRun_SingleLabelWarns(t *testing.T) {
	tbl := &Table{Columns: []string{"count"}, Rows: [][]string{{"1"}, {"1"}, {"1"}}}
	p, _ := NewPipeline(nil, nil, DefaultFitOptions())

	res, err := p.Run(tbl, []string{"count"}, RunOptions{K: 2, Score: true})
	require.NoError(t, err)
	assert.Nil(t, res.Scores)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "insufficient clusters")
	assert.Equal(t, []int{0, 0, 0}, res.Labels)
}

func TestPipelineRun_Pretrained(t *testing.T) {
	scaler := &Scaler{Features: []string{"count"}, Mean: []float64{10}, Scale: []float64{5}}
	model := &Model{Features: []string{"count"}, Centroids: [][]float64{{-1}, {1}, {8}}}

	p, err := NewPipeline(scaler, model, DefaultFitOptions())
	require.NoError(t, err)
	require.True(t, p.Pretrained())

	res, err := p.Run(twoIncidentTable(), []string{"count"}, RunOptions{K: 2})
	require.NoError(t, err)
	assert.True(t, res.Pretrained)
	assert.Equal(t, 3, res.K, "loaded model decides k")
	// (5-10)/5 = -1 and (50-10)/5 = 8
	assert.Equal(t, []int{0, 2}, res.Labels)
	assert.Equal(t, []int{1, 0, 1}, res.Sizes)

	// scaler and model are not modified by a run
	assert.Equal(t, []float64{10}, scaler.Mean)
	assert.Equal(t, [][]float64{{-1}, {1}, {8}}, model.Centroids)
}

func TestPipelineRun_PretrainedIncompatible(t *testing.T) {
	scaler := &Scaler{Features: []string{"count", "victims"}, Mean: []float64{0, 0}, Scale: []float64{1, 1}}
	model := &Model{Centroids: [][]float64{{0, 0}, {1, 1}}}
	p, err := NewPipeline(scaler, model, DefaultFitOptions())
	require.NoError(t, err)

	_, err = p.Run(twoIncidentTable(), []string{"count"}, RunOptions{})
	assert.ErrorIs(t, err, ErrArtifactIncompatible)
}

func TestNewPipeline_Pairing(t *testing.T) {
	_, err := NewPipeline(&Scaler{Mean: []float64{0}, Scale: []float64{1}}, nil, FitOptions{})
	assert.ErrorIs(t, err, ErrArtifactIncompatible)

	_, err = NewPipeline(&Scaler{Mean: []float64{0}, Scale: []float64{1}}, &Model{Centroids: [][]float64{{0, 0}}}, FitOptions{})
	assert.ErrorIs(t, err, ErrArtifactIncompatible)
}

func TestResult_Labeled(t *testing.T) {
	tbl := twoIncidentTable()
	p, _ := NewPipeline(nil, nil, DefaultFitOptions())
	res, err := p.Run(tbl, []string{"count"}, RunOptions{K: 2})
	require.NoError(t, err)

	labeled := res.Labeled()
	assert.Equal(t, []string{"type", "region", "count", LabelColumn}, labeled.Columns)
	col, ok := labeled.Column(LabelColumn)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"0", "1"}, col)
	assert.Equal(t, []string{"type", "region", "count"}, tbl.Columns)
}
