package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// Workbook sheet names.
const (
	SheetSummary    = "Summary"
	SheetClean      = "Clean"
	SheetMetrics    = "Metrics"
	SheetRejections = "Rejections"
	SheetPivot      = "Pivot"
)

// XLSXOptions controls workbook output.
type XLSXOptions struct {
	// Pivot adds a division × representative pivot table over the Clean sheet.
	Pivot bool
	// Chart adds a column chart of calls per metric group.
	Chart bool
}

// WriteXLSX renders res as a workbook and writes it to w.
func WriteXLSX(w io.Writer, res *pipeline.Result, opt XLSXOptions) error {
	f, err := Workbook(res, opt)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Workbook builds the report workbook: Summary, Clean, Metrics and
// Rejections sheets, plus the optional pivot table and chart. The caller
// closes the returned file.
func Workbook(res *pipeline.Result, opt XLSXOptions) (*excelize.File, error) {
	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetClean, SheetMetrics, SheetRejections} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	pairs := res.Summary.Pairs()
	if err := writeSheet(f, SheetSummary, []string{"metric", "value"}, len(pairs), headerStyle, func(i int) []interface{} {
		return []interface{}{pairs[i].Name, cellValue(pairs[i].Value)}
	}); err != nil {
		return nil, err
	}

	clean := res.Clean
	if err := writeSheet(f, SheetClean, clean.Columns(), clean.Len(), headerStyle, func(i int) []interface{} {
		return cleanCells(clean, i)
	}); err != nil {
		return nil, err
	}

	m := res.Metrics
	if err := writeSheet(f, SheetMetrics, m.Columns(), len(m.Rows), headerStyle, func(i int) []interface{} {
		cells := m.Cells(i)
		out := make([]interface{}, len(cells))
		for j, c := range cells {
			if j < len(m.Columns())-len(pipeline.MetricColumns) {
				out[j] = c
			} else {
				out[j] = cellValue(c)
			}
		}
		return out
	}); err != nil {
		return nil, err
	}

	rep := res.Report()
	if err := writeSheet(f, SheetRejections, []string{"row", "column", "value", "reason"}, len(rep.Samples), headerStyle, func(i int) []interface{} {
		e := rep.Samples[i]
		return []interface{}{e.Row, e.Column, e.Value, e.Reason}
	}); err != nil {
		return nil, err
	}

	if opt.Chart && len(m.Rows) > 0 {
		if err := addCallsChart(f, m); err != nil {
			return nil, err
		}
	}
	if opt.Pivot && clean.Len() > 0 && clean.Has(pipeline.FieldDivision) {
		if err := addPivot(f, res); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	ok = true
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, header []string, n int, style int, row func(int) []interface{}) error {
	hdr := make([]interface{}, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if len(header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(header))
		if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
			return fmt.Errorf("size %s columns: %w", sheet, err)
		}
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		vals := row(i)
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cleanCells keeps numeric columns numeric so pivot tables can sum them.
func cleanCells(t *pipeline.CleanTable, i int) []interface{} {
	rec := t.Records[i]
	out := make([]interface{}, 0, len(t.Fields)+len(t.Extra))
	for _, f := range t.Fields {
		switch f {
		case pipeline.FieldVisits:
			out = append(out, rec.Visits)
		case pipeline.FieldCalls:
			out = append(out, rec.Calls)
		default:
			out = append(out, rec.Value(f))
		}
	}
	for _, x := range t.Extra {
		out = append(out, rec.Extra[x])
	}
	return out
}

func cellValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func addCallsChart(f *excelize.File, m *pipeline.MetricTable) error {
	keyCols := len(m.Columns()) - len(pipeline.MetricColumns)
	lastKey, _ := excelize.ColumnNumberToName(keyCols)
	callsCol, _ := excelize.ColumnNumberToName(keyCols + 2)
	n := len(m.Rows) + 1
	anchor, _ := excelize.ColumnNumberToName(len(m.Columns()) + 2)
	err := f.AddChart(SheetMetrics, anchor+"2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$%s$1", SheetMetrics, callsCol),
			Categories: fmt.Sprintf("'%s'!$A$2:$%s$%d", SheetMetrics, lastKey, n),
			Values:     fmt.Sprintf("'%s'!$%s$2:$%s$%d", SheetMetrics, callsCol, callsCol, n),
		}},
		Title:  []excelize.RichTextRun{{Text: "Calls per group"}},
		Legend: excelize.ChartLegend{Position: "none"},
	})
	if err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}

// addPivot sums the call weight by division (rows) and representative
// (columns). Without a count column every row counts as one call.
func addPivot(f *excelize.File, res *pipeline.Result) error {
	clean := res.Clean
	if _, err := f.NewSheet(SheetPivot); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetPivot, err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(clean.Columns()))
	data := excelize.PivotTableField{Data: string(pipeline.FieldDoctor), Name: "Calls", Subtotal: "Count"}
	if clean.CountField != "" {
		data = excelize.PivotTableField{Data: string(clean.CountField), Name: "Calls", Subtotal: "Sum"}
	}
	ct := res.CrossTab
	rows, cols := 1, 1
	if ct != nil {
		rows, cols = len(ct.Rows), len(ct.Cols)
	}
	end, _ := excelize.CoordinatesToCellName(cols+2, rows+5)
	err := f.AddPivotTable(&excelize.PivotTableOptions{
		DataRange:       fmt.Sprintf("%s!A1:%s%d", SheetClean, lastCol, clean.Len()+1),
		PivotTableRange: fmt.Sprintf("%s!A3:%s", SheetPivot, end),
		Rows:            []excelize.PivotTableField{{Data: string(pipeline.FieldDivision), DefaultSubtotal: true}},
		Columns:         []excelize.PivotTableField{{Data: string(pipeline.FieldRepresentative), DefaultSubtotal: true}},
		Data:            []excelize.PivotTableField{data},
		RowGrandTotals:  true,
		ColGrandTotals:  true,
		ShowDrill:       true,
		ShowRowHeaders:  true,
		ShowColHeaders:  true,
		ShowLastColumn:  true,
	})
	if err != nil {
		return fmt.Errorf("add pivot table: %w", err)
	}
	return nil
}
