package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Rejection reasons recorded on DataError.
const (
	ReasonMissingField = "missing required field"
	ReasonBadDate      = "unparseable date"
	ReasonNegative     = "negative value"
)

// SchemaError indicates the input table lacks required structure. It is fatal
// for the whole run and is returned before any row is processed.
type SchemaError struct {
	Missing   []string
	Duplicate []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required column(s): %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, fmt.Sprintf("ambiguous column(s): %s", strings.Join(e.Duplicate, ", ")))
	}
	if len(parts) == 0 {
		return "schema error"
	}
	return "schema error: " + strings.Join(parts, "; ")
}

// DataError describes one rejected row. Rows are 1-based data rows (the
// header is not counted).
type DataError struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *DataError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %s (%s)", e.Row, e.Reason, e.Column)
	}
	return fmt.Sprintf("row %d: %s (%s=%q)", e.Row, e.Reason, e.Column, e.Value)
}

// EmptyResultError reports that no usable rows survived validation or
// filtering. It is distinct from SchemaError: the file was well-formed.
type EmptyResultError struct {
	Report RejectReport
	// Filtered is set when rows survived normalization but none matched
	// the requested filters.
	Filtered bool
}

func (e *EmptyResultError) Error() string {
	switch {
	case e.Filtered:
		return "no usable data: no rows matched the filters"
	case e.Report.Rejected > 0:
		return fmt.Sprintf("no usable data: all %d row(s) were rejected", e.Report.Rejected)
	default:
		return "no usable data: input has no rows"
	}
}

// RejectReport accumulates per-row issues found while normalizing.
type RejectReport struct {
	InputRows  int            `json:"input_rows"`
	Rejected   int            `json:"rejected"`
	Reasons    map[string]int `json:"reasons,omitempty"`
	Samples    []DataError    `json:"samples,omitempty"`
	Duplicates int            `json:"duplicates"`
	Coerced    int            `json:"coerced"`
	BlankRows  int            `json:"blank_rows"`
}

// ReasonCount is one entry of the per-reason tally.
type ReasonCount struct {
	Reason string
	Count  int
}

func (r *RejectReport) reject(e DataError, maxSamples int) {
	r.Rejected++
	if r.Reasons == nil {
		r.Reasons = map[string]int{}
	}
	r.Reasons[e.Reason]++
	if len(r.Samples) < maxSamples {
		r.Samples = append(r.Samples, e)
	}
}

// ReasonCounts returns the tally ordered by count, then reason.
func (r RejectReport) ReasonCounts() []ReasonCount {
	out := make([]ReasonCount, 0, len(r.Reasons))
	for k, v := range r.Reasons {
		out = append(out, ReasonCount{Reason: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func (r RejectReport) clone() RejectReport {
	c := r
	if r.Reasons != nil {
		c.Reasons = make(map[string]int, len(r.Reasons))
		for k, v := range r.Reasons {
			c.Reasons[k] = v
		}
	}
	c.Samples = append([]DataError(nil), r.Samples...)
	return c
}
