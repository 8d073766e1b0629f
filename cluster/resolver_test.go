package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultTargets() []ColumnTarget {
	cols := DefaultConfig().Columns
	return []ColumnTarget{cols.DisasterType, cols.Region}
}

func TestResolveColumns(t *testing.T) {
	tests := []struct {
		name           string
		actual         []string
		wantMapping    map[string]string
		wantUnresolved []string
	}{
		{
			name:        "substring match",
			actual:      []string{"jenis_bencana_2022", "Kecamatan", "Jumlah"},
			wantMapping: map[string]string{"jenis_bencana_2022": "Jenis_Bencana", "Kecamatan": "Wilayah"},
		},
		{
			name:        "canonical names need no mapping",
			actual:      []string{"Jenis_Bencana", "Wilayah"},
			wantMapping: map[string]string{},
		},
		{
			name:        "exact match beats earlier substring match",
			actual:      []string{"Bencana_Alam", "jenis_bencana", "Wilayah"},
			wantMapping: map[string]string{"jenis_bencana": "Jenis_Bencana"},
		},
		{
			name:           "no match leaves columns as-is",
			actual:         []string{"Type", "Count"},
			wantMapping:    map[string]string{},
			wantUnresolved: []string{"Jenis_Bencana", "Wilayah"},
		},
		{
			name:           "a column is claimed once",
			actual:         []string{"Bencana Wilayah"},
			wantMapping:    map[string]string{"Bencana Wilayah": "Jenis_Bencana"},
			wantUnresolved: []string{"Wilayah"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ResolveColumns(tt.actual, defaultTargets())
			assert.Equal(t, tt.wantMapping, res.Mapping)
			assert.Equal(t, tt.wantUnresolved, res.Unresolved)
		})
	}
}

func TestApplyResolution(t *testing.T) {
	tbl := &Table{Columns: []string{"jenis_bencana_2022", "kecamatan", "n"}, Rows: [][]string{{"Banjir", "A", "1"}}}

	res := ResolveColumns(tbl.Columns, defaultTargets())
	out := ApplyResolution(tbl, res)

	assert.Equal(t, []string{"Jenis_Bencana", "Wilayah", "n"}, out.Columns)
	assert.Equal(t, []string{"jenis_bencana_2022", "kecamatan", "n"}, tbl.Columns, "source table is untouched")
	assert.NoError(t, RequireColumns(out, "Jenis_Bencana", "Wilayah"))
}

func TestRequireColumns(t *testing.T) {
	tbl := &Table{Columns: []string{"Jenis_Bencana"}}

	err := RequireColumns(tbl, "Jenis_Bencana", "Wilayah", "Jumlah")
	var mce *MissingColumnsError
	if assert.ErrorAs(t, err, &mce) {
		assert.Equal(t, []string{"Wilayah", "Jumlah"}, mce.Missing)
	}
	assert.ErrorIs(t, err, ErrMissingColumns)
}
