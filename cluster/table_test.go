package cluster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const incidentsCSV = `Jenis_Bencana_2022,Kecamatan,Jumlah_Kejadian,Korban
Banjir,Purwakarta,5,1
Longsor Tanah,Wanayasa,50,3
Pohon Tumbang,Purwakarta,7,0
Longsor Tanah,Darangdan,45,x
Pohon Tumbang,Wanayasa,6,2
Banjir,Darangdan,48,4
`

func mustReadCSV(t *testing.T, body string) *Table {
	t.Helper()
	tbl, err := ReadCSV(strings.NewReader(body), ',')
	require.NoError(t, err)
	return tbl
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// loading
// ---------------------------------------------------------------------------

func TestReadCSV(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV)

	assert.Equal(t, []string{"Jenis_Bencana_2022", "Kecamatan", "Jumlah_Kejadian", "Korban"}, tbl.Columns)
	assert.Equal(t, 6, tbl.Len())
	assert.Equal(t, "Longsor Tanah", tbl.Rows[1][0])
}

func TestReadCSV_BOMRaggedAndBlankRows(t *testing.T) {
	body := "\xef\xbb\xbf a ; b ;c\n1;2\n\n;;\n4;5;6;7\n"
	tbl, err := ReadCSV(strings.NewReader(body), ';')
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"1", "2", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, tbl.Rows[1])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), ',')
	assert.Error(t, err)
}

func TestLoadTable_CSV(t *testing.T) {
	path := writeFile(t, "incidents.csv", incidentsCSV)

	tbl, err := LoadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, 6, tbl.Len())
}

func TestLoadTable_NotExists(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "missing.csv"), ',')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadTable_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Jenis Bencana", "Wilayah", "Jumlah"},
		{"Banjir", "Purwakarta", 5},
		{"Gempa", "Wanayasa", 2},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := LoadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"Jenis Bencana", "Wilayah", "Jumlah"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"Gempa", "Wanayasa", "2"}, tbl.Rows[1])
}

// ---------------------------------------------------------------------------
// accessors and transforms
// ---------------------------------------------------------------------------

func TestTable_NumericColumns(t *testing.T) {
	tbl := mustReadCSV(t, "a,b,c,d\n1,x,2.5,\n2,y,,\n3,z,-1e2,\n")
	// d has no values at all and b is text
	assert.Equal(t, []string{"a", "c"}, tbl.NumericColumns())

	tbl = mustReadCSV(t, "n\n1\nNaN\n")
	assert.Empty(t, tbl.NumericColumns(), "NaN cells are not numeric")
}

func TestTable_Filter(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV)

	tests := []struct {
		name   string
		values []string
		want   int
	}{
		{"single type", []string{"banjir"}, 2},
		{"case and space insensitive", []string{"  LONGSOR tanah "}, 2},
		{"several types", []string{"Banjir", "Pohon Tumbang"}, 4},
		{"no selection keeps all", nil, 6},
		{"unknown type", []string{"gempa"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tbl.Filter("Jenis_Bencana_2022", tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Len())
		})
	}

	_, err := tbl.Filter("Nope", []string{"x"})
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestTable_WithColumnDoesNotModifySource(t *testing.T) {
	tbl := mustReadCSV(t, "a\n1\n2\n")

	out, err := tbl.WithColumn("Cluster", []string{"0", "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "Cluster"}, out.Columns)
	assert.Equal(t, []string{"2", "1"}, out.Rows[1])
	assert.Equal(t, []string{"a"}, tbl.Columns)
	assert.Equal(t, []string{"2"}, tbl.Rows[1])

	replaced, err := out.WithColumn("a", []string{"9", "9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "0"}, replaced.Rows[0])

	_, err = tbl.WithColumn("b", []string{"only one"})
	assert.Error(t, err)
}

func TestTable_LowerColumnAndValueCounts(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV).LowerColumn("Jenis_Bencana_2022")

	counts, err := tbl.ValueCounts("Jenis_Bencana_2022")
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{
		{Value: "banjir", Count: 2},
		{Value: "longsor tanah", Count: 2},
		{Value: "pohon tumbang", Count: 2},
	}, counts)

	unique, err := tbl.Unique("Kecamatan")
	require.NoError(t, err)
	assert.Equal(t, []string{"Darangdan", "Purwakarta", "Wanayasa"}, unique)
}

func TestTable_WriteCSVRoundTrip(t *testing.T) {
	tbl := mustReadCSV(t, incidentsCSV)

	var sb strings.Builder
	require.NoError(t, tbl.WriteCSV(&sb, ';'))
	assert.True(t, strings.HasPrefix(sb.String(), "Jenis_Bencana_2022;Kecamatan;"))

	back, err := ReadCSV(strings.NewReader(sb.String()), ';')
	require.NoError(t, err)
	assert.Equal(t, tbl, back)
}
