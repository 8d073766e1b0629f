package cluster

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes one column the way a dataframe describe() does.
// Numeric columns fill the moment/quantile fields; categorical ones fill
// Unique/Top/Freq.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Numeric bool    `json:"numeric"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean,omitempty"`
	Std     float64 `json:"std,omitempty"`
	Min     float64 `json:"min,omitempty"`
	Q25     float64 `json:"q25,omitempty"`
	Median  float64 `json:"median,omitempty"`
	Q75     float64 `json:"q75,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Unique  int     `json:"unique,omitempty"`
	Top     string  `json:"top,omitempty"`
	Freq    int     `json:"freq,omitempty"`
}

// Overview holds the headline counts of the statistics view
type Overview struct {
	Rows          int `json:"rows"`
	Columns       int `json:"columns"`
	DisasterTypes int `json:"disasterTypes"`
	Regions       int `json:"regions"`
}

// Describe summarizes every column. Empty cells are not counted.
func Describe(t *Table) []ColumnSummary {
	numeric := make(map[string]bool)
	for _, c := range t.NumericColumns() {
		numeric[c] = true
	}

	out := make([]ColumnSummary, 0, len(t.Columns))
	for _, name := range t.Columns {
		col, _ := t.Column(name)
		if numeric[name] {
			out = append(out, describeNumeric(name, col))
		} else {
			out = append(out, describeCategorical(name, col))
		}
	}
	return out
}

func describeNumeric(name string, col []string) ColumnSummary {
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if f, ok := parseNumber(v); ok {
			vals = append(vals, f)
		}
	}
	s := ColumnSummary{Name: name, Numeric: true, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}

	sort.Float64s(vals)
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		s.Std = 0
	}
	s.Min = vals[0]
	s.Max = vals[len(vals)-1]
	s.Q25 = percentileSorted(vals, 25)
	s.Median = percentileSorted(vals, 50)
	s.Q75 = percentileSorted(vals, 75)
	return s
}

func describeCategorical(name string, col []string) ColumnSummary {
	counts := make(map[string]int)
	s := ColumnSummary{Name: name}
	for _, v := range col {
		if strings.TrimSpace(v) == "" {
			continue
		}
		s.Count++
		counts[v]++
	}
	s.Unique = len(counts)
	for v, c := range counts {
		if c > s.Freq || (c == s.Freq && v < s.Top) {
			s.Top, s.Freq = v, c
		}
	}
	return s
}

// percentileSorted linearly interpolates between closest ranks of sorted x
// (0 <= p <= 100).
func percentileSorted(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return x[0]
	}
	if p >= 100 {
		return x[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return x[lower]
	}
	weight := rank - float64(lower)
	return x[lower]*(1-weight) + x[upper]*weight
}

// Summarize returns the row/column counts plus distinct disaster types and regions.
// Missing columns count as 0 distinct values.
func Summarize(t *Table, typeColumn, regionColumn string) Overview {
	o := Overview{Rows: t.Len(), Columns: len(t.Columns)}
	if u, err := t.Unique(typeColumn); err == nil {
		o.DisasterTypes = len(u)
	}
	if u, err := t.Unique(regionColumn); err == nil {
		o.Regions = len(u)
	}
	return o
}

// RegionCounts counts incidents per region for one disaster type. When
// allowed is non-empty the type must be one of them.
func RegionCounts(t *Table, typeColumn, regionColumn, disasterType string, allowed []string) ([]ValueCount, error) {
	if err := RequireColumns(t, typeColumn, regionColumn); err != nil {
		return nil, err
	}
	if len(allowed) > 0 {
		ok := false
		for _, a := range allowed {
			if normalizeCategory(a) == normalizeCategory(disasterType) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, nil
		}
	}
	filtered, err := t.Filter(typeColumn, []string{disasterType})
	if err != nil {
		return nil, err
	}
	return filtered.ValueCounts(regionColumn)
}

// VisibleTypes returns the distinct disaster types present in t, restricted
// to allowed when it is non-empty, sorted ascending.
func VisibleTypes(t *Table, typeColumn string, allowed []string) ([]string, error) {
	all, err := t.Unique(typeColumn)
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		want[normalizeCategory(a)] = true
	}
	var out []string
	for _, v := range all {
		if want[normalizeCategory(v)] {
			out = append(out, v)
		}
	}
	return out, nil
}
