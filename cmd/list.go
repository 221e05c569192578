package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/bundle"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

var (
	listOutDir string
	listFiles  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List report bundles in the output directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := listOutDir
		if root == "" {
			root = defaultOutputDir()
		}
		out := cmd.OutOrStdout()

		var dirs []string
		if _, err := bundle.Load(root); err == nil {
			dirs = append(dirs, root)
		}
		entries, err := os.ReadDir(root)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(root, e.Name()))
			}
		}
		sort.Strings(dirs)

		found := false
		for _, dir := range dirs {
			m, err := bundle.Load(dir)
			if err != nil {
				continue
			}
			found = true
			fmt.Fprintf(out, "- %s: %s (clean %d, rejected %d, total calls %s) %s\n",
				filepath.Base(dir), m.Source, m.CleanRows, m.Rejected,
				pipeline.FormatMetric(m.TotalCalls),
				m.CreatedAt.Local().Format("2006-01-02 15:04"))
			if listFiles {
				for _, f := range m.Files {
					fmt.Fprintf(out, "    %s\n", f)
				}
			}
		}
		if !found {
			fmt.Fprintln(out, "(no report bundles)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listOutDir, "out-dir", "", "directory holding report bundles (default from config output_dir)")
	listCmd.Flags().BoolVar(&listFiles, "files", false, "also list each bundle's files")
}
