package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/parser"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
)

// inputFlags select how an input file is read.
type inputFlags struct {
	delimiter  string
	sheetName  string
	sheetIndex int
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | '|' | 'tab' (sniffed if omitted)")
	cmd.Flags().StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to read")
	cmd.Flags().IntVar(&f.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func (f *inputFlags) options() (parser.Options, error) {
	opt := parser.Options{SheetName: f.sheetName, SheetIndex: f.sheetIndex}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|", "pipe":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	return opt, nil
}

// runFlags select what a report computes.
type runFlags struct {
	groupBy []string
	period  string
	filters []string
	topN    int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.groupBy, "group-by", nil, "group keys: representative, doctor, division, product, location, hq, call_type, outcome, day|week|month|quarter|year (default from config)")
	cmd.Flags().StringVar(&f.period, "period", "", "granularity of a 'period' group key: day|week|month|quarter|year")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "keep rows where field equals one of the values: key=v1,v2 (repeatable)")
	cmd.Flags().IntVar(&f.topN, "top", 0, "rank this many representatives and doctors (default from config)")
}

// request resolves the flags against configured defaults.
func (f *runFlags) request() (pipeline.Request, error) {
	groupBy, period, topN := f.groupBy, f.period, f.topN
	if cfg != nil {
		if len(groupBy) == 0 {
			groupBy = cfg.DefaultGroupBy
		}
		if period == "" {
			period = cfg.DefaultPeriod
		}
		if topN <= 0 {
			topN = cfg.TopN
		}
	} else if len(groupBy) == 0 {
		groupBy = []string{string(pipeline.KeyRepresentative)}
	}
	req, err := pipeline.ParseRequest(groupBy, period, f.filters)
	if err != nil {
		return req, err
	}
	req.TopN = topN
	return req, nil
}

func xlsxOptions() report.XLSXOptions {
	if cfg == nil {
		return report.XLSXOptions{Pivot: true, Chart: true}
	}
	return report.XLSXOptions{Pivot: cfg.XLSXPivot, Chart: cfg.XLSXChart}
}

func defaultOutputDir() string {
	if cfg != nil && cfg.OutputDir != "" {
		return cfg.OutputDir
	}
	return "reports"
}

// expandInputs resolves globs and literal paths into a sorted, de-duplicated
// file list.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// runFile parses path and runs the pipeline over it.
func runFile(path string, in parser.Options, req pipeline.Request) (*pipeline.Result, error) {
	opt, err := pipelineOptions()
	if err != nil {
		return nil, err
	}
	raw, err := parser.ParseFile(path, in)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(raw, req, opt)
}

// warnRejections prints a short rejection note, or the full report for an
// EmptyResultError.
func warnRejections(w io.Writer, rep pipeline.RejectReport) {
	if rep.Rejected == 0 {
		return
	}
	fmt.Fprintf(w, "⚠ %d of %d row(s) rejected\n", rep.Rejected, rep.InputRows)
	fmt.Fprint(w, report.Rejections(rep))
}

func explainError(w io.Writer, err error) {
	var ee *pipeline.EmptyResultError
	if errors.As(err, &ee) {
		warnRejections(w, ee.Report)
	}
}
