// Package bundle writes every artifact of one report run into a directory
// described by a manifest.json.
package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
	"github.com/KaramelBytes/callreport-cli/internal/utils"
)

const (
	manifestFileName = "manifest.json"
)

// Artifact file names inside a bundle.
const (
	FileMarkdown   = "report.md"
	FileJSON       = "report.json"
	FileClean      = "clean.csv"
	FileMetrics    = "metrics.csv"
	FileSummary    = "summary.csv"
	FileRejections = "rejections.csv"
	FileWorkbook   = "report.xlsx"
	FilePrometheus = "metrics.prom"
)

// Manifest describes a bundle on disk.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	GroupBy    []string  `json:"group_by"`
	Period     string    `json:"period,omitempty"`
	Filters    []string  `json:"filters,omitempty"`
	InputRows  int       `json:"input_rows"`
	CleanRows  int       `json:"clean_rows"`
	Rejected   int       `json:"rejected"`
	Duplicates int       `json:"duplicates"`
	BlankRows  int       `json:"blank_rows"`
	TotalCalls float64   `json:"total_calls"`
	Files      []string  `json:"files"`
}

// Options selects optional artifacts.
type Options struct {
	XLSX       report.XLSXOptions
	Prometheus bool
}

// Write renders res into dir, creating it if needed. Each file is written
// atomically and manifest.json is written last, so a directory with a
// manifest always holds a complete bundle.
func Write(dir string, res *pipeline.Result, req pipeline.Request, opt Options) (*Manifest, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	rep := res.Report()
	m := &Manifest{
		RunID:      uuid.NewString(),
		Source:     res.Clean.Name,
		CreatedAt:  time.Now().UTC(),
		GroupBy:    []string{},
		Period:     string(res.Metrics.Period),
		InputRows:  rep.InputRows,
		CleanRows:  res.Clean.Len(),
		Rejected:   rep.Rejected,
		Duplicates: rep.Duplicates,
		BlankRows:  rep.BlankRows,
		TotalCalls: res.Summary.TotalCalls,
	}
	for _, k := range req.GroupBy {
		m.GroupBy = append(m.GroupBy, string(k))
	}
	for _, f := range req.Filters {
		m.Filters = append(m.Filters, f.String())
	}

	artifacts := []struct {
		name   string
		render func(io.Writer) error
	}{
		{FileMarkdown, func(w io.Writer) error {
			_, err := io.WriteString(w, report.Markdown(res))
			return err
		}},
		{FileJSON, func(w io.Writer) error {
			b, err := report.JSON(res, true)
			if err != nil {
				return err
			}
			_, err = w.Write(b)
			return err
		}},
		{FileClean, func(w io.Writer) error { return report.WriteCleanCSV(w, res.Clean) }},
		{FileMetrics, func(w io.Writer) error { return report.WriteMetricsCSV(w, res.Metrics) }},
		{FileSummary, func(w io.Writer) error { return report.WriteSummaryCSV(w, res.Summary) }},
		{FileRejections, func(w io.Writer) error { return report.WriteRejectionsCSV(w, rep) }},
		{FileWorkbook, func(w io.Writer) error { return report.WriteXLSX(w, res, opt.XLSX) }},
	}
	if opt.Prometheus {
		artifacts = append(artifacts, struct {
			name   string
			render func(io.Writer) error
		}{FilePrometheus, func(w io.Writer) error { return report.WritePrometheus(w, res) }})
	}

	for _, a := range artifacts {
		var buf bytes.Buffer
		if err := a.render(&buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", a.name, err)
		}
		if err := utils.SafeWriteFile(filepath.Join(dir, a.name), buf.Bytes()); err != nil {
			return nil, fmt.Errorf("write %s: %w", a.name, err)
		}
		m.Files = append(m.Files, a.name)
	}

	data, err := utils.PrettyJSON(m)
	if err != nil {
		return nil, err
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, manifestFileName), data); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// Load reads the manifest.json in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bundle not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
