package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/bundle"
	"github.com/KaramelBytes/callreport-cli/internal/utils"
)

var (
	rbInput     inputFlags
	rbRun       runFlags
	rbOutDir    string
	rbNoProm    bool
	rbKeepGoing bool
	rbQuiet     bool
)

var reportBatchCmd = &cobra.Command{
	Use:   "report-batch <files...>",
	Short: "Report on multiple CSV/TSV/XLSX files, one bundle per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		in, err := rbInput.options()
		if err != nil {
			return err
		}
		req, err := rbRun.request()
		if err != nil {
			return err
		}
		outDir := rbOutDir
		if outDir == "" {
			outDir = defaultOutputDir()
		}
		if err := utils.EnsureDir(outDir); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}

		out := cmd.OutOrStdout()
		used := map[string]int{}
		failed := 0
		total := len(files)
		for i, path := range files {
			if !rbQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			res, err := runFile(path, in, req)
			if err != nil {
				if !rbKeepGoing {
					explainError(cmd.ErrOrStderr(), err)
					return fmt.Errorf("%s: %w", path, err)
				}
				failed++
				slog.Error("report failed", "file", path, "err", err)
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", filepath.Base(path), err)
				continue
			}

			name, renamed := bundleName(outDir, used, path)
			if renamed && !rbQuiet {
				fmt.Fprintf(out, "⚠ Detected existing bundle, writing to %s to avoid overwrite.\n", name)
			}
			dir := filepath.Join(outDir, name)
			m, err := bundle.Write(dir, res, req, bundle.Options{XLSX: xlsxOptions(), Prometheus: !rbNoProm})
			if err != nil {
				return err
			}
			slog.Debug("bundle written", "file", path, "dir", dir, "run_id", m.RunID)
			if !rbQuiet {
				rep := res.Report()
				fmt.Fprintf(out, "✓ %s: %d clean row(s), %d rejected, %d duplicate(s) → %s\n",
					filepath.Base(path), m.CleanRows, rep.Rejected, rep.Duplicates, dir)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, total)
		}
		return nil
	},
}

// bundleName picks a directory name for path that collides neither with
// earlier files in this batch nor with bundles already on disk. renamed
// reports whether a collision suffix was added.
func bundleName(outDir string, used map[string]int, path string) (name string, renamed bool) {
	base := utils.BaseName(path)
	if rbInput.sheetName != "" {
		base += "__sheet-" + utils.BaseName(strings.ToLower(rbInput.sheetName))
	}
	for {
		name = utils.UniqueName(used, base)
		if _, err := os.Stat(filepath.Join(outDir, name)); os.IsNotExist(err) {
			return name, name != base
		}
	}
}

func init() {
	rootCmd.AddCommand(reportBatchCmd)
	rbInput.register(reportBatchCmd)
	rbRun.register(reportBatchCmd)
	reportBatchCmd.Flags().StringVar(&rbOutDir, "out-dir", "", "directory for the per-file bundles (default from config output_dir)")
	reportBatchCmd.Flags().BoolVar(&rbNoProm, "no-prom", false, "skip the Prometheus text file in each bundle")
	reportBatchCmd.Flags().BoolVar(&rbKeepGoing, "keep-going", false, "continue with the remaining files when one fails")
	reportBatchCmd.Flags().BoolVar(&rbQuiet, "quiet", false, "suppress progress and non-essential output")
}
