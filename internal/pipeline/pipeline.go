// Package pipeline turns raw sales-call logs into a clean table, grouped
// metrics and summary statistics. It performs no I/O and holds no shared
// state; every call owns its inputs and returns new values.
package pipeline

// Request selects what a Run computes beyond normalization.
type Request struct {
	GroupBy []GroupKey
	Period  Period
	Filters []Filter
	// TopN caps the representative and doctor rankings; 0 means 10.
	TopN int
}

// Result is the output of one run. It is not modified after Run returns.
type Result struct {
	Clean      *CleanTable
	Metrics    *MetricTable
	Summary    *SummaryStats
	Insights   []string
	TopReps    []Ranked
	TopDoctors []Ranked
	CrossTab   *CrossTab
}

// Report returns the rejection report of the run.
func (r *Result) Report() RejectReport { return r.Clean.Report }

// Run chains Validate, Normalize, Filter, DeriveMetrics and Summarize.
// A SchemaError is returned before any row is read; an EmptyResultError is
// returned when no row survives normalization or filtering.
func Run(raw *RawTable, req Request, opt Options) (*Result, error) {
	if err := opt.Check(); err != nil {
		return nil, err
	}
	v, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	clean, err := Normalize(v, opt)
	if err != nil {
		return nil, err
	}
	if len(req.Filters) > 0 {
		if clean, err = clean.Filter(req.Filters); err != nil {
			return nil, err
		}
	}
	metrics, err := DeriveMetrics(clean, req.GroupBy, req.Period, opt)
	if err != nil {
		return nil, err
	}
	sum, err := Summarize(clean, opt)
	if err != nil {
		return nil, err
	}
	n := req.TopN
	if n <= 0 {
		n = 10
	}
	return &Result{
		Clean:      clean,
		Metrics:    metrics,
		Summary:    sum,
		Insights:   Insights(sum, clean),
		TopReps:    Rank(clean, FieldRepresentative, n),
		TopDoctors: Rank(clean, FieldDoctor, n),
		CrossTab:   CrossTabulate(clean, FieldDivision, FieldRepresentative),
	}, nil
}

// ParseRequest builds a Request from text arguments. period sets the
// granularity of a bare "period" key; a key such as "month" names its own
// granularity and takes precedence.
func ParseRequest(groupBy []string, period string, filters []string) (Request, error) {
	keys, implied, err := ParseGroupKeys(groupBy)
	if err != nil {
		return Request{}, err
	}
	req := Request{GroupBy: keys, Period: implied}
	if period != "" {
		p, err := ParsePeriod(period)
		if err != nil {
			return Request{}, err
		}
		if req.Period == "" {
			req.Period = p
		}
	}
	if req.Filters, err = ParseFilters(filters); err != nil {
		return Request{}, err
	}
	return req, nil
}
