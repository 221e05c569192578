package pipeline

import (
	"fmt"
	"strings"
)

// ValidatedTable is a RawTable whose header has been matched against the
// canonical schema.
type ValidatedTable struct {
	raw        *RawTable
	index      map[Field]int
	extraIdx   []int
	extraNames []string
}

// Raw returns the underlying table.
func (v *ValidatedTable) Raw() *RawTable { return v.raw }

// Fields returns the canonical fields found, in canonical order.
func (v *ValidatedTable) Fields() []Field {
	var out []Field
	for _, f := range append(append([]Field(nil), RequiredFields...), OptionalFields...) {
		if _, ok := v.index[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Column returns the raw column index for a field.
func (v *ValidatedTable) Column(f Field) (int, bool) {
	i, ok := v.index[f]
	return i, ok
}

// Validate checks that the table carries every required column,
// matching header names case-insensitively and through a small alias
// table. It never inspects data rows.
func Validate(raw *RawTable) (*ValidatedTable, error) {
	if raw == nil {
		raw = &RawTable{}
	}
	known := map[Field]bool{}
	for _, f := range RequiredFields {
		known[f] = true
	}
	for _, f := range OptionalFields {
		known[f] = true
	}

	v := &ValidatedTable{raw: raw, index: map[Field]int{}}
	keys := make([]string, len(raw.Columns))
	claimed := make([]bool, len(raw.Columns))
	var dup []string

	// Exact names first so an alias never shadows a canonical column.
	for i, c := range raw.Columns {
		keys[i] = canonicalHeader(c)
		f := Field(keys[i])
		if !known[f] {
			continue
		}
		if _, seen := v.index[f]; seen {
			dup = appendUnique(dup, string(f))
			continue
		}
		v.index[f] = i
		claimed[i] = true
	}
	aliased := map[Field]int{}
	for i := range raw.Columns {
		if claimed[i] {
			continue
		}
		f, ok := fieldAliases[keys[i]]
		if !ok {
			continue
		}
		if _, exact := v.index[f]; exact && aliased[f] == 0 {
			// Canonical column present; keep the alias column as extra data.
			continue
		}
		if aliased[f] > 0 {
			dup = appendUnique(dup, string(f))
			continue
		}
		aliased[f] = i + 1
		v.index[f] = i
		claimed[i] = true
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := v.index[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 || len(dup) > 0 {
		return nil, &SchemaError{Missing: missing, Duplicate: dup}
	}

	used := map[string]int{}
	for _, f := range v.Fields() {
		used[string(f)] = 1
	}
	for i := range raw.Columns {
		if claimed[i] {
			continue
		}
		name := keys[i]
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		used[name]++
		v.extraIdx = append(v.extraIdx, i)
		v.extraNames = append(v.extraNames, name)
	}
	return v, nil
}

// canonicalHeader lower-cases a header and folds separators to '_'.
func canonicalHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '-', '.', '_', '/':
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
