package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/bundle"
	"github.com/KaramelBytes/callreport-cli/internal/parser"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
	"github.com/KaramelBytes/callreport-cli/internal/watch"
)

var (
	repInput  inputFlags
	repRun    runFlags
	repOutDir string
	repFormat string
	repWatch  bool
	repNoProm bool
	repClean  bool
)

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Clean a call log and report grouped metrics and summary statistics",
	Long: `Clean a call log and report grouped metrics and summary statistics.

Without --out-dir the report is printed to stdout as Markdown (or JSON /
Prometheus text with --format). With --out-dir every artifact (Markdown,
JSON, CSV tables, XLSX workbook with pivot table and chart, Prometheus
text) is written into that directory together with a manifest.json.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		switch repFormat {
		case "md", "json", "prom":
		default:
			return fmt.Errorf("unsupported --format: %s (use md|json|prom)", repFormat)
		}
		in, err := repInput.options()
		if err != nil {
			return err
		}
		req, err := repRun.request()
		if err != nil {
			return err
		}
		if _, err := pipelineOptions(); err != nil {
			return err
		}

		run := func(context.Context) error {
			return runReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), path, in, req)
		}
		if !repWatch {
			return run(cmd.Context())
		}

		if err := run(cmd.Context()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "✗ Error:", err)
		}
		ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for changes (Ctrl+C to stop)\n", path)
		return watch.File(ctx, path, watch.Options{}, run)
	},
}

// runReport runs one report and renders it to out or into the bundle dir.
func runReport(out, errOut io.Writer, path string, in parser.Options, req pipeline.Request) error {
	res, err := runFile(path, in, req)
	if err != nil {
		explainError(errOut, err)
		return err
	}
	if repOutDir != "" {
		m, err := bundle.Write(repOutDir, res, req, bundle.Options{XLSX: xlsxOptions(), Prometheus: !repNoProm})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote report bundle to %s (%d files, run %s)\n", repOutDir, len(m.Files), m.RunID)
		warnRejections(errOut, res.Report())
		return nil
	}
	return render(out, res, repFormat, repClean)
}

func render(w io.Writer, res *pipeline.Result, format string, includeClean bool) error {
	switch format {
	case "json":
		b, err := report.JSON(res, includeClean)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "prom":
		return report.WritePrometheus(w, res)
	default:
		_, err := io.WriteString(w, strings.TrimRight(report.Markdown(res), "\n")+"\n")
		return err
	}
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(reportCmd)
	repInput.register(reportCmd)
	repRun.register(reportCmd)
	reportCmd.Flags().StringVar(&repOutDir, "out-dir", "", "write a report bundle into this directory")
	reportCmd.Flags().StringVar(&repFormat, "format", "md", "stdout format: md|json|prom")
	reportCmd.Flags().BoolVar(&repClean, "include-clean", false, "JSON: include the clean rows")
	reportCmd.Flags().BoolVar(&repNoProm, "no-prom", false, "bundle: skip the Prometheus text file")
	reportCmd.Flags().BoolVar(&repWatch, "watch", false, "re-run the report whenever the input file changes")
}
