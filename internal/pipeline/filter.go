package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Filter keeps records whose Field value equals one of Values,
// compared case-insensitively.
type Filter struct {
	Field  Field
	Values []string
}

func (f Filter) String() string {
	return fmt.Sprintf("%s=%s", f.Field, strings.Join(f.Values, ","))
}

// ParseFilters parses "key=v1,v2" expressions. Keys go through the same
// header folding and aliases as input columns, so "BU=cardio" filters on
// division. Keys not in the canonical schema name extra columns.
func ParseFilters(exprs []string) ([]Filter, error) {
	var out []Filter
	for _, e := range exprs {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", e)
		}
		key := canonicalHeader(k)
		if key == "" {
			return nil, fmt.Errorf("invalid filter %q: empty key", e)
		}
		f := Field(key)
		if alias, ok := fieldAliases[key]; ok {
			f = alias
		}
		var vals []string
		for _, x := range strings.Split(v, ",") {
			if x = collapse(x); x != "" {
				vals = append(vals, x)
			}
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("invalid filter %q: no values", e)
		}
		out = append(out, Filter{Field: f, Values: vals})
	}
	return out, nil
}

// Filter returns a new table holding only records matching every filter.
// The receiver is not modified. If nothing matches, an *EmptyResultError
// with Filtered set is returned.
func (t *CleanTable) Filter(filters []Filter) (*CleanTable, error) {
	if len(filters) == 0 {
		return t.derive(append([]Record(nil), t.Records...)), nil
	}
	fold := cases.Fold()
	sets := make([]map[string]struct{}, len(filters))
	for i, f := range filters {
		if !t.Has(f.Field) && !t.hasExtra(string(f.Field)) {
			return nil, fmt.Errorf("filter %s: unknown column %q", f, f.Field)
		}
		sets[i] = map[string]struct{}{}
		for _, v := range f.Values {
			sets[i][fold.String(v)] = struct{}{}
		}
	}
	var keep []Record
	for _, r := range t.Records {
		match := true
		for i, f := range filters {
			if _, ok := sets[i][fold.String(r.Value(f.Field))]; !ok {
				match = false
				break
			}
		}
		if match {
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		return nil, &EmptyResultError{Report: t.Report.clone(), Filtered: true}
	}
	return t.derive(keep), nil
}

func (t *CleanTable) hasExtra(name string) bool {
	for _, x := range t.Extra {
		if x == name {
			return true
		}
	}
	return false
}
