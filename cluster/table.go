package cluster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is an ordered set of rows with named columns. Cells are kept as raw
// text; numeric coercion happens in Prepare. Methods never modify the receiver.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ValueCount is one entry of a category frequency table
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// LoadTable reads a CSV or XLSX file into a Table. The first row is the header.
func LoadTable(path string, delimiter rune) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("data file not found: %s", path)
			}
			return nil, fmt.Errorf("opening data file: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, delimiter)
	}
}

// ReadCSV parses delimited text. Short rows are padded with empty cells and
// long rows are truncated to the header width.
func ReadCSV(r io.Reader, delimiter rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return tableFromRecords(records)
}

// WriteCSV writes the header and rows as delimited text.
func (t *Table) WriteCSV(w io.Writer, delimiter rune) error {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("data file not found: %s", path)
		}
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return tableFromRecords(rows)
}

func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for _, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has a column with this exact name
func (t *Table) HasColumn(name string) bool { return t.Index(name) >= 0 }

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]string, bool) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// NumericColumns returns, in table order, the columns whose non-empty cells
// all parse as finite numbers. Columns with no values at all are excluded.
func (t *Table) NumericColumns() []string {
	var out []string
	for j, name := range t.Columns {
		seen := false
		numeric := true
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[j])
			if v == "" {
				continue
			}
			seen = true
			if _, ok := parseNumber(v); !ok {
				numeric = false
				break
			}
		}
		if seen && numeric {
			out = append(out, name)
		}
	}
	return out
}

// Filter returns the rows whose value in column matches one of values,
// compared case-insensitively after trimming. An empty values list keeps all rows.
func (t *Table) Filter(column string, values []string) (*Table, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, &MissingColumnsError{Missing: []string{column}}
	}
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	if len(values) == 0 {
		out.Rows = cloneRows(t.Rows)
		return out, nil
	}

	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[normalizeCategory(v)] = struct{}{}
	}
	for _, row := range t.Rows {
		if _, ok := want[normalizeCategory(row[idx])]; ok {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return out, nil
}

// WithColumn returns a copy of the table with a column appended (or replaced
// if it already exists). len(values) must equal the row count.
func (t *Table) WithColumn(name string, values []string) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(t.Rows))
	}
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: cloneRows(t.Rows)}
	idx := out.Index(name)
	if idx < 0 {
		out.Columns = append(out.Columns, name)
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], values[i])
		}
		return out, nil
	}
	for i := range out.Rows {
		out.Rows[i][idx] = values[i]
	}
	return out, nil
}

// Rename returns a copy with columns renamed according to mapping (old -> new).
func (t *Table) Rename(mapping map[string]string) *Table {
	out := &Table{Columns: make([]string, len(t.Columns)), Rows: cloneRows(t.Rows)}
	for i, c := range t.Columns {
		if n, ok := mapping[c]; ok {
			out.Columns[i] = n
		} else {
			out.Columns[i] = c
		}
	}
	return out
}

// LowerColumn returns a copy with the named column trimmed and lower-cased.
// A missing column leaves the copy unchanged.
func (t *Table) LowerColumn(name string) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: cloneRows(t.Rows)}
	idx := out.Index(name)
	if idx < 0 {
		return out
	}
	for _, row := range out.Rows {
		row[idx] = normalizeCategory(row[idx])
	}
	return out
}

// ValueCounts counts distinct values of a column, most frequent first and
// ties ordered by value.
func (t *Table) ValueCounts(column string) ([]ValueCount, error) {
	col, ok := t.Column(column)
	if !ok {
		return nil, &MissingColumnsError{Missing: []string{column}}
	}
	counts := make(map[string]int)
	for _, v := range col {
		counts[v]++
	}
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// Unique returns the distinct values of a column in ascending order.
func (t *Table) Unique(column string) ([]string, error) {
	counts, err := t.ValueCounts(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(counts))
	for i, vc := range counts {
		out[i] = vc.Value
	}
	sort.Strings(out)
	return out, nil
}

// parseNumber parses a trimmed cell. NaN and infinities are rejected.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
