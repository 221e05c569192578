package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/parser"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
	"github.com/KaramelBytes/callreport-cli/internal/utils"
)

var (
	cleanInput      inputFlags
	cleanOutputPath string
	cleanRejectPath string
	cleanFilters    []string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Validate and normalize a call log and write the clean table as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		in, err := cleanInput.options()
		if err != nil {
			return err
		}
		opt, err := pipelineOptions()
		if err != nil {
			return err
		}
		filters, err := pipeline.ParseFilters(cleanFilters)
		if err != nil {
			return err
		}

		raw, err := parser.ParseFile(path, in)
		if err != nil {
			return err
		}
		v, err := pipeline.Validate(raw)
		if err != nil {
			return err
		}
		clean, err := pipeline.Normalize(v, opt)
		if err != nil {
			explainError(cmd.ErrOrStderr(), err)
			return err
		}
		if len(filters) > 0 {
			if clean, err = clean.Filter(filters); err != nil {
				return err
			}
		}

		var buf bytes.Buffer
		if err := report.WriteCleanCSV(&buf, clean); err != nil {
			return err
		}
		if cleanOutputPath == "" {
			if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
				return err
			}
		} else {
			if err := utils.SafeWriteFile(cleanOutputPath, buf.Bytes()); err != nil {
				return fmt.Errorf("write clean table: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d clean row(s) to %s\n", clean.Len(), cleanOutputPath)
		}

		rep := clean.Report
		if cleanRejectPath != "" {
			buf.Reset()
			if err := report.WriteRejectionsCSV(&buf, rep); err != nil {
				return err
			}
			if err := utils.SafeWriteFile(cleanRejectPath, buf.Bytes()); err != nil {
				return fmt.Errorf("write rejections: %w", err)
			}
		}
		if rep.Duplicates > 0 || rep.BlankRows > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d duplicate(s), skipped %d blank row(s)\n", rep.Duplicates, rep.BlankRows)
		}
		warnRejections(cmd.ErrOrStderr(), rep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanInput.register(cleanCmd)
	cleanCmd.Flags().StringVarP(&cleanOutputPath, "output", "o", "", "write the clean CSV to this path instead of stdout")
	cleanCmd.Flags().StringVar(&cleanRejectPath, "rejections", "", "also write the rejection samples as CSV to this path")
	cleanCmd.Flags().StringArrayVar(&cleanFilters, "filter", nil, "keep rows where field equals one of the values: key=v1,v2 (repeatable)")
}
