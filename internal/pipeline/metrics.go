package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GroupKey names a column a metric table can be grouped by.
type GroupKey string

const (
	KeyRepresentative GroupKey = "representative"
	KeyDoctor         GroupKey = "doctor"
	KeyDivision       GroupKey = "division"
	KeyProduct        GroupKey = "product"
	KeyLocation       GroupKey = "location"
	KeyHQ             GroupKey = "hq"
	KeyCallType       GroupKey = "call_type"
	KeyOutcome        GroupKey = "outcome"
	KeyPeriod         GroupKey = "period"
)

// Period is the calendar granularity of the period key.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// AllGroup labels the single group produced when no keys are given.
const AllGroup = "all"

// BlankValue stands in for an empty grouping value.
const BlankValue = "(blank)"

// ParsePeriod parses a period name; empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	case "daily", "date":
		return PeriodDay, nil
	case "weekly":
		return PeriodWeek, nil
	case "monthly":
		return PeriodMonth, nil
	case "quarterly":
		return PeriodQuarter, nil
	case "yearly", "annual":
		return PeriodYear, nil
	default:
		return "", fmt.Errorf("unknown period %q (use day, week, month, quarter or year)", s)
	}
}

// Start returns the first day of the period containing t.
func (p Period) Start(t time.Time) time.Time {
	y, m, d := t.Date()
	switch p {
	case PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodQuarter:
		return time.Date(y, m-(m-1)%3, 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Label renders the period containing t: 2024-01-05, 2024-W01, 2024-01,
// 2024-Q1 or 2024.
func (p Period) Label(t time.Time) string {
	switch p {
	case PeriodDay:
		return t.Format(DateLayout)
	case PeriodWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case PeriodQuarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case PeriodYear:
		return fmt.Sprintf("%d", t.Year())
	default:
		return t.Format("2006-01")
	}
}

// ParseGroupKeys parses key names. A period name used as a key ("month",
// "week", ...) becomes the period key and is returned as the implied
// period; otherwise the returned period is empty.
func ParseGroupKeys(names []string) ([]GroupKey, Period, error) {
	var keys []GroupKey
	var implied Period
	seen := map[GroupKey]bool{}
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = canonicalHeader(name)
			if name == "" {
				continue
			}
			var k GroupKey
			switch name {
			case "period":
				k = KeyPeriod
			case "day", "week", "month", "quarter", "year", "date":
				k = KeyPeriod
				p, _ := ParsePeriod(name)
				if implied != "" && implied != p {
					return nil, "", fmt.Errorf("conflicting periods %q and %q", implied, p)
				}
				implied = p
			default:
				f := Field(name)
				if alias, ok := fieldAliases[name]; ok {
					f = alias
				}
				switch GroupKey(f) {
				case KeyRepresentative, KeyDoctor, KeyDivision, KeyProduct, KeyLocation, KeyHQ, KeyCallType, KeyOutcome:
					k = GroupKey(f)
				default:
					return nil, "", fmt.Errorf("unknown group key %q", name)
				}
			}
			if seen[k] {
				return nil, "", fmt.Errorf("duplicate group key %q", k)
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, implied, nil
}

// groupValue returns the value of key k for r; period keys use p.
func groupValue(r Record, k GroupKey, p Period) string {
	if k == KeyPeriod {
		return p.Label(r.Date)
	}
	if v := r.Value(Field(k)); v != "" {
		return v
	}
	return BlankValue
}

// MetricRow is one aggregated group.
type MetricRow struct {
	Group          []string `json:"group"`
	Records        int      `json:"records"`
	Calls          float64  `json:"calls"`
	DigitalCalls   float64  `json:"digital_calls"`
	CompliantCalls float64  `json:"compliant_calls"`
	Entities       int      `json:"entities"`
	AvgCalls       float64  `json:"avg_calls"`
	EDetailingPct  float64  `json:"e_detailing_pct"`
	CompliancePct  float64  `json:"compliance_pct"`
	Slab           string   `json:"slab"`

	start time.Time
}

// MetricTable holds grouped metrics sorted by group keys.
type MetricTable struct {
	Keys   []GroupKey  `json:"keys"`
	Period Period      `json:"period,omitempty"`
	AvgPer Field       `json:"avg_per"`
	Rows   []MetricRow `json:"rows"`
}

// MetricColumns are the computed columns that follow the key columns.
var MetricColumns = []string{"records", "calls", "avg_calls", "e_detailing_pct", "compliance_pct", "slab"}

// Columns returns key column names followed by MetricColumns.
func (m *MetricTable) Columns() []string {
	cols := make([]string, 0, len(m.Keys)+len(MetricColumns))
	if len(m.Keys) == 0 {
		cols = append(cols, "group")
	}
	for _, k := range m.Keys {
		cols = append(cols, string(k))
	}
	return append(cols, MetricColumns...)
}

// Cells returns row i aligned with Columns.
func (m *MetricTable) Cells(i int) []string {
	r := m.Rows[i]
	out := append([]string(nil), r.Group...)
	return append(out,
		fmt.Sprintf("%d", r.Records),
		formatFloat(r.Calls),
		FormatMetric(r.AvgCalls),
		FormatMetric(r.EDetailingPct),
		FormatMetric(r.CompliancePct),
		r.Slab,
	)
}

// Label joins a row's group values as "key=value | key=value".
func (m *MetricTable) Label(i int) string {
	r := m.Rows[i]
	if len(m.Keys) == 0 {
		return AllGroup
	}
	parts := make([]string, len(m.Keys))
	for j, k := range m.Keys {
		parts[j] = fmt.Sprintf("%s=%s", k, r.Group[j])
	}
	return strings.Join(parts, " | ")
}

// DeriveMetrics groups clean records by keys and computes per-group call
// totals, average calls per distinct entity, E-detailing and compliance
// percentages, and the E-detailing slab. Rows are ordered ascending by the
// keys in order; period keys sort chronologically. An empty period with a
// period key means month.
func DeriveMetrics(t *CleanTable, keys []GroupKey, period Period, opt Options) (*MetricTable, error) {
	if t.Len() == 0 {
		var rep RejectReport
		if t != nil {
			rep = t.Report.clone()
		}
		return nil, &EmptyResultError{Report: rep}
	}
	bands, err := Bands(opt.SlabBounds)
	if err != nil {
		return nil, err
	}
	seen := map[GroupKey]bool{}
	hasPeriod := false
	for _, k := range keys {
		switch k {
		case KeyRepresentative, KeyDoctor, KeyDivision, KeyProduct, KeyLocation, KeyHQ, KeyCallType, KeyOutcome:
		case KeyPeriod:
			hasPeriod = true
		default:
			return nil, fmt.Errorf("unknown group key %q", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate group key %q", k)
		}
		seen[k] = true
	}
	if hasPeriod && period == "" {
		period = PeriodMonth
	}
	if !hasPeriod {
		period = ""
	}

	digital := foldSet(opt.DigitalChannels)
	compliant := foldSet(opt.CompliantOutcomes)
	entity := opt.avgPer()

	type acc struct {
		row      MetricRow
		entities map[string]struct{}
	}
	groups := map[string]*acc{}
	var order []string
	for _, r := range t.Records {
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = groupValue(r, k, period)
		}
		id := strings.Join(vals, "\x1f")
		a := groups[id]
		if a == nil {
			a = &acc{row: MetricRow{Group: vals}, entities: map[string]struct{}{}}
			if hasPeriod {
				a.row.start = period.Start(r.Date)
			}
			if len(keys) == 0 {
				a.row.Group = []string{AllGroup}
			}
			groups[id] = a
			order = append(order, id)
		}
		a.row.Records++
		a.row.Calls += r.Count
		if _, ok := digital[r.CallType]; ok {
			a.row.DigitalCalls += r.Count
		}
		if _, ok := compliant[r.Outcome]; ok {
			a.row.CompliantCalls += r.Count
		}
		if e := r.Value(entity); e != "" {
			a.entities[e] = struct{}{}
		}
	}

	out := &MetricTable{Keys: append([]GroupKey(nil), keys...), Period: period, AvgPer: entity}
	out.Rows = make([]MetricRow, 0, len(order))
	for _, id := range order {
		a := groups[id]
		row := a.row
		row.Entities = len(a.entities)
		if row.Entities > 0 {
			row.AvgCalls = row.Calls / float64(row.Entities)
		}
		row.EDetailingPct = percent(row.DigitalCalls, row.Calls)
		row.CompliancePct = percent(row.CompliantCalls, row.Calls)
		row.Slab = Slab(row.EDetailingPct, bands)
		out.Rows = append(out.Rows, row)
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i], out.Rows[j]
		for n, k := range keys {
			if k == KeyPeriod {
				if !a.start.Equal(b.start) {
					return a.start.Before(b.start)
				}
				continue
			}
			if a.Group[n] != b.Group[n] {
				return a.Group[n] < b.Group[n]
			}
		}
		return false
	})
	return out, nil
}

// percent returns part/total as a percentage in [0, 100]; 0 when total is 0.
func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := part / total * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
