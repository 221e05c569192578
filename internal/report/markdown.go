// Package report renders pipeline results into the exchange formats
// consumed downstream: Markdown, CSV, XLSX, JSON and Prometheus text.
package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// Markdown renders a compact run report suitable for terminals and
// standalone docs.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder
	rep := res.Report()
	s := res.Summary

	b.WriteString("[RUN SUMMARY]\n")
	if res.Clean.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", res.Clean.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d (clean %d, rejected %d, duplicates %d, blank %d)\n",
		rep.InputRows, res.Clean.Len(), rep.Rejected, rep.Duplicates, rep.BlankRows))
	if rep.Coerced > 0 {
		b.WriteString(fmt.Sprintf("Non-numeric counts treated as 0: %d\n", rep.Coerced))
	}
	if s.From != "" {
		b.WriteString(fmt.Sprintf("Period: %s to %s\n", s.From, s.To))
	}
	b.WriteString("\n[KEY METRICS]\n")
	for _, p := range s.Pairs() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", p.Name, safeVal(p.Value)))
	}

	if len(res.Insights) > 0 {
		b.WriteString("\n[INSIGHTS]\n")
		for _, line := range res.Insights {
			b.WriteString("- " + safeVal(line) + "\n")
		}
	}

	if m := res.Metrics; m != nil && len(m.Rows) > 0 {
		b.WriteString("\n[METRICS]\n")
		cols := m.Columns()
		b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
		for i := range m.Rows {
			cells := m.Cells(i)
			for j := range cells {
				cells[j] = safeVal(cells[j])
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	if len(res.TopReps) > 0 {
		b.WriteString("\n[TOP REPRESENTATIVES]\n")
		for i, r := range res.TopReps {
			b.WriteString(fmt.Sprintf("%d. %s: %s calls\n", i+1, safeVal(r.Name), pipeline.FormatMetric(r.Calls)))
		}
	}

	if rep.Rejected > 0 {
		b.WriteString("\n")
		b.WriteString(Rejections(rep))
	}
	return b.String()
}

// Rejections renders the rejection tally and sample rows.
func Rejections(rep pipeline.RejectReport) string {
	var b strings.Builder
	b.WriteString("[REJECTIONS]\n")
	b.WriteString(fmt.Sprintf("Rejected rows: %d of %d\n", rep.Rejected, rep.InputRows))
	for _, rc := range rep.ReasonCounts() {
		b.WriteString(fmt.Sprintf("- %s: %d\n", rc.Reason, rc.Count))
	}
	if len(rep.Samples) > 0 {
		b.WriteString("Examples:\n")
		for _, e := range rep.Samples {
			b.WriteString("  • " + safeVal(e.Error()) + "\n")
		}
		if rep.Rejected > len(rep.Samples) {
			b.WriteString(fmt.Sprintf("  … and %d more\n", rep.Rejected-len(rep.Samples)))
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
