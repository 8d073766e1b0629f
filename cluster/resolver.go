package cluster

import "strings"

// ColumnTarget is a canonical column name plus the substrings that identify it
// in a source file. Matching is case-insensitive.
type ColumnTarget struct {
	Name  string   `yaml:"name" json:"name"`
	Match []string `yaml:"match,omitempty" json:"match,omitempty"`
}

// Resolution maps actual column names to canonical names. Targets with no
// matching column are listed in Unresolved and the source columns are used as-is.
type Resolution struct {
	Mapping    map[string]string `json:"mapping"`
	Unresolved []string          `json:"unresolved,omitempty"`
}

// ResolveColumns matches each target against the actual column names. An exact
// (case-insensitive) name match wins; otherwise the first column, in file order,
// containing one of the target's match keys is used. A column is claimed by at
// most one target.
func ResolveColumns(actual []string, targets []ColumnTarget) Resolution {
	res := Resolution{Mapping: make(map[string]string)}
	claimed := make(map[string]bool)

	for _, target := range targets {
		col, ok := findExact(actual, target.Name, claimed)
		if !ok {
			col, ok = findBySubstring(actual, target.Match, claimed)
		}
		if !ok {
			res.Unresolved = append(res.Unresolved, target.Name)
			continue
		}
		claimed[col] = true
		if col != target.Name {
			res.Mapping[col] = target.Name
		}
	}
	return res
}

func findExact(actual []string, name string, claimed map[string]bool) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return "", false
	}
	for _, col := range actual {
		if !claimed[col] && strings.ToLower(strings.TrimSpace(col)) == want {
			return col, true
		}
	}
	return "", false
}

func findBySubstring(actual, keys []string, claimed map[string]bool) (string, bool) {
	for _, col := range actual {
		if claimed[col] {
			continue
		}
		lc := strings.ToLower(col)
		for _, key := range keys {
			k := strings.ToLower(strings.TrimSpace(key))
			if k != "" && strings.Contains(lc, k) {
				return col, true
			}
		}
	}
	return "", false
}

// ApplyResolution returns a copy of the table with resolved columns renamed
// to their canonical names.
func ApplyResolution(t *Table, res Resolution) *Table {
	return t.Rename(res.Mapping)
}

// RequireColumns is ValidateFeatures for canonical fields: it reports every
// name absent from the table.
func RequireColumns(t *Table, names ...string) error {
	var missing []string
	for _, n := range names {
		if n != "" && !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}
