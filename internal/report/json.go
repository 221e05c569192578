package report

import (
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/utils"
)

// Document is the JSON form of a run.
type Document struct {
	Source     string                 `json:"source"`
	Summary    *pipeline.SummaryStats `json:"summary"`
	Insights   []string               `json:"insights"`
	Metrics    MetricsDoc             `json:"metrics"`
	TopReps    []pipeline.Ranked      `json:"top_representatives"`
	TopDoctors []pipeline.Ranked      `json:"top_doctors"`
	CrossTab   *pipeline.CrossTab     `json:"division_by_representative,omitempty"`
	Rejections pipeline.RejectReport  `json:"rejections"`
	Clean      TableDoc               `json:"clean"`
}

// MetricsDoc is the metric table as columns plus string cells.
type MetricsDoc struct {
	Keys    []pipeline.GroupKey `json:"keys"`
	Period  pipeline.Period     `json:"period,omitempty"`
	AvgPer  pipeline.Field      `json:"avg_per"`
	Columns []string            `json:"columns"`
	Rows    [][]string          `json:"rows"`
}

// TableDoc is a header plus rows of cell text.
type TableDoc struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewDocument assembles the JSON document for res. Clean rows are
// omitted when includeClean is false.
func NewDocument(res *pipeline.Result, includeClean bool) *Document {
	m := res.Metrics
	doc := &Document{
		Source:     res.Clean.Name,
		Summary:    res.Summary,
		Insights:   res.Insights,
		TopReps:    res.TopReps,
		TopDoctors: res.TopDoctors,
		CrossTab:   res.CrossTab,
		Rejections: res.Report(),
		Metrics: MetricsDoc{
			Keys:    m.Keys,
			Period:  m.Period,
			AvgPer:  m.AvgPer,
			Columns: m.Columns(),
			Rows:    make([][]string, len(m.Rows)),
		},
		Clean: TableDoc{Columns: res.Clean.Columns(), Rows: [][]string{}},
	}
	for i := range m.Rows {
		doc.Metrics.Rows[i] = m.Cells(i)
	}
	if includeClean {
		doc.Clean.Rows = res.Clean.Raw().Rows
	}
	return doc
}

// JSON renders res as indented JSON.
func JSON(res *pipeline.Result, includeClean bool) ([]byte, error) {
	return utils.PrettyJSON(NewDocument(res, includeClean))
}
