package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// WriteRawCSV writes a raw table, header first.
func WriteRawCSV(w io.Writer, t *pipeline.RawTable) error {
	return writeCSV(w, t.Columns, len(t.Rows), func(i int) []string { return t.Rows[i] })
}

// WriteCleanCSV writes the clean table with canonical column names.
func WriteCleanCSV(w io.Writer, t *pipeline.CleanTable) error {
	return writeCSV(w, t.Columns(), t.Len(), t.Row)
}

// WriteMetricsCSV writes one line per metric group.
func WriteMetricsCSV(w io.Writer, m *pipeline.MetricTable) error {
	return writeCSV(w, m.Columns(), len(m.Rows), m.Cells)
}

// WriteSummaryCSV writes the flat metric,value table.
func WriteSummaryCSV(w io.Writer, s *pipeline.SummaryStats) error {
	pairs := s.Pairs()
	return writeCSV(w, []string{"metric", "value"}, len(pairs), func(i int) []string {
		return []string{pairs[i].Name, pairs[i].Value}
	})
}

// WriteRejectionsCSV writes the sampled rejected rows.
func WriteRejectionsCSV(w io.Writer, rep pipeline.RejectReport) error {
	return writeCSV(w, []string{"row", "column", "value", "reason"}, len(rep.Samples), func(i int) []string {
		e := rep.Samples[i]
		return []string{strconv.Itoa(e.Row), e.Column, e.Value, e.Reason}
	})
}

func writeCSV(w io.Writer, header []string, n int, row func(int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
