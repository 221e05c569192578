package pipeline

import (
	"fmt"
	"sort"
)

// SummaryStats are run-wide scalar statistics over a clean table.
type SummaryStats struct {
	TotalCalls            float64 `json:"total_calls"`
	TotalRecords          int     `json:"total_records"`
	UniqueRepresentatives int     `json:"unique_representatives"`
	UniqueDoctors         int     `json:"unique_doctors"`
	UniqueDivisions       int     `json:"unique_divisions"`
	TopPerformer          string  `json:"top_performer"`
	TopPerformerCalls     float64 `json:"top_performer_calls"`
	MostActiveDivision    string  `json:"most_active_division"`
	MostActiveCalls       float64 `json:"most_active_division_calls"`
	MostVisitedDoctor     string  `json:"most_visited_doctor"`
	AvgCallsPerRep        float64 `json:"avg_calls_per_representative"`
	AvgCallsPerDoctor     float64 `json:"avg_calls_per_doctor"`
	EDetailingPct         float64 `json:"e_detailing_pct"`
	CompliancePct         float64 `json:"compliance_pct"`
	From                  string  `json:"from"`
	To                    string  `json:"to"`
	DaysCovered           int     `json:"days_covered"`
	AvgDailyCalls         float64 `json:"avg_daily_calls"`
}

// Stat is one name/value pair of the flat summary export.
type Stat struct {
	Name  string
	Value string
}

// Pairs flattens the summary into the metric,value table used for export.
func (s *SummaryStats) Pairs() []Stat {
	return []Stat{
		{"total_calls", formatFloat(s.TotalCalls)},
		{"total_records", fmt.Sprintf("%d", s.TotalRecords)},
		{"unique_representatives", fmt.Sprintf("%d", s.UniqueRepresentatives)},
		{"unique_doctors", fmt.Sprintf("%d", s.UniqueDoctors)},
		{"unique_divisions", fmt.Sprintf("%d", s.UniqueDivisions)},
		{"top_performer", s.TopPerformer},
		{"top_performer_calls", formatFloat(s.TopPerformerCalls)},
		{"most_active_division", s.MostActiveDivision},
		{"most_active_division_calls", formatFloat(s.MostActiveCalls)},
		{"most_visited_doctor", s.MostVisitedDoctor},
		{"avg_calls_per_representative", FormatMetric(s.AvgCallsPerRep)},
		{"avg_calls_per_doctor", FormatMetric(s.AvgCallsPerDoctor)},
		{"e_detailing_pct", FormatMetric(s.EDetailingPct)},
		{"compliance_pct", FormatMetric(s.CompliancePct)},
		{"from", s.From},
		{"to", s.To},
		{"days_covered", fmt.Sprintf("%d", s.DaysCovered)},
		{"avg_daily_calls", FormatMetric(s.AvgDailyCalls)},
	}
}

// Summarize computes SummaryStats. Leaders are chosen by summed call
// weight; ties go to the alphabetically first name.
func Summarize(t *CleanTable, opt Options) (*SummaryStats, error) {
	if t.Len() == 0 {
		var rep RejectReport
		if t != nil {
			rep = t.Report.clone()
		}
		return nil, &EmptyResultError{Report: rep}
	}
	digital := foldSet(opt.DigitalChannels)
	compliant := foldSet(opt.CompliantOutcomes)

	byRep := map[string]float64{}
	byDoctor := map[string]float64{}
	byDivision := map[string]float64{}
	var total, dig, comp float64
	first, last := t.Records[0].Date, t.Records[0].Date
	for _, r := range t.Records {
		total += r.Count
		byRep[r.Representative] += r.Count
		byDoctor[r.Doctor] += r.Count
		byDivision[r.Division] += r.Count
		if _, ok := digital[r.CallType]; ok {
			dig += r.Count
		}
		if _, ok := compliant[r.Outcome]; ok {
			comp += r.Count
		}
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}

	s := &SummaryStats{
		TotalCalls:            total,
		TotalRecords:          t.Len(),
		UniqueRepresentatives: len(byRep),
		UniqueDoctors:         len(byDoctor),
		UniqueDivisions:       len(byDivision),
		EDetailingPct:         percent(dig, total),
		CompliancePct:         percent(comp, total),
		From:                  first.Format(DateLayout),
		To:                    last.Format(DateLayout),
		DaysCovered:           int((last.Unix()-first.Unix())/86400) + 1,
	}
	s.TopPerformer, s.TopPerformerCalls = leader(byRep)
	s.MostActiveDivision, s.MostActiveCalls = leader(byDivision)
	s.MostVisitedDoctor, _ = leader(byDoctor)
	s.AvgCallsPerRep = total / float64(len(byRep))
	s.AvgCallsPerDoctor = total / float64(len(byDoctor))
	s.AvgDailyCalls = total / float64(s.DaysCovered)
	return s, nil
}

// leader returns the key with the largest value, alphabetically first on ties.
func leader(m map[string]float64) (string, float64) {
	best, bestV, found := "", 0.0, false
	for k, v := range m {
		if !found || v > bestV || (v == bestV && k < best) {
			best, bestV, found = k, v, true
		}
	}
	return best, bestV
}

// Ranked is one entry of a Rank result.
type Ranked struct {
	Name  string  `json:"name"`
	Calls float64 `json:"calls"`
}

// Rank returns the top n values of field by summed calls, highest first,
// ties alphabetical. n <= 0 returns every value.
func Rank(t *CleanTable, f Field, n int) []Ranked {
	if t.Len() == 0 {
		return nil
	}
	sums := map[string]float64{}
	for _, r := range t.Records {
		v := r.Value(f)
		if v == "" {
			v = BlankValue
		}
		sums[v] += r.Count
	}
	out := make([]Ranked, 0, len(sums))
	for k, v := range sums {
		out = append(out, Ranked{Name: k, Calls: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls == out[j].Calls {
			return out[i].Name < out[j].Name
		}
		return out[i].Calls > out[j].Calls
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CrossTab is a call matrix of one field against another.
type CrossTab struct {
	RowField Field       `json:"row_field"`
	ColField Field       `json:"col_field"`
	Rows     []string    `json:"rows"`
	Cols     []string    `json:"cols"`
	Cells    [][]float64 `json:"cells"`
}

// CrossTabulate sums calls for every (rows, cols) value pair. Row and
// column labels are sorted ascending; absent pairs are 0.
func CrossTabulate(t *CleanTable, rows, cols Field) *CrossTab {
	ct := &CrossTab{RowField: rows, ColField: cols}
	if t.Len() == 0 {
		return ct
	}
	type pair struct{ r, c string }
	sums := map[pair]float64{}
	rs, cs := map[string]bool{}, map[string]bool{}
	for _, rec := range t.Records {
		r, c := rec.Value(rows), rec.Value(cols)
		if r == "" {
			r = BlankValue
		}
		if c == "" {
			c = BlankValue
		}
		rs[r], cs[c] = true, true
		sums[pair{r, c}] += rec.Count
	}
	ct.Rows = sortedKeys(rs)
	ct.Cols = sortedKeys(cs)
	ct.Cells = make([][]float64, len(ct.Rows))
	for i, r := range ct.Rows {
		ct.Cells[i] = make([]float64, len(ct.Cols))
		for j, c := range ct.Cols {
			ct.Cells[i][j] = sums[pair{r, c}]
		}
	}
	return ct
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Insights renders the headline observations shown above the metric table.
func Insights(s *SummaryStats, t *CleanTable) []string {
	if s == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Average calls per representative: %s", FormatMetric(s.AvgCallsPerRep)),
		fmt.Sprintf("Top performer: %s with %s calls", s.TopPerformer, formatFloat(s.TopPerformerCalls)),
	}
	if t != nil && t.Has(FieldVisits) && s.UniqueDoctors > 0 {
		var visits float64
		for _, r := range t.Records {
			visits += r.Visits
		}
		lines = append(lines, fmt.Sprintf("Average visits per doctor: %s", FormatMetric(visits/float64(s.UniqueDoctors))))
	} else {
		lines = append(lines, fmt.Sprintf("Average calls per doctor: %s", FormatMetric(s.AvgCallsPerDoctor)))
	}
	lines = append(lines,
		fmt.Sprintf("Most active division: %s with %s calls", s.MostActiveDivision, formatFloat(s.MostActiveCalls)),
		fmt.Sprintf("Most visited doctor: %s", s.MostVisitedDoctor),
		fmt.Sprintf("Date range: %s to %s (%d day(s))", s.From, s.To, s.DaysCovered),
		fmt.Sprintf("Average daily calls: %s", FormatMetric(s.AvgDailyCalls)),
		fmt.Sprintf("E-detailing share: %s%%, compliance: %s%%", FormatMetric(s.EDetailingPct), FormatMetric(s.CompliancePct)),
	)
	return lines
}
