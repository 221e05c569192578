package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/callreport-cli/internal/bundle"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// resetFlags restores every flag to its default so bound variables do not
// leak between invocations of the shared root command.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd executes the root command with args and returns stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCLI_SampleCleanReport(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	calls := filepath.Join(home, "calls.csv")
	runCmd(t, "sample", "--rows", "80", "--seed", "7", "--dirty", "-o", calls)

	cleanPath := filepath.Join(home, "clean.csv")
	rejPath := filepath.Join(home, "rejections.csv")
	runCmd(t, "clean", calls, "-o", cleanPath, "--rejections", rejPath)
	body, err := os.ReadFile(cleanPath)
	if err != nil {
		t.Fatalf("read clean: %v", err)
	}
	if !strings.HasPrefix(string(body), "representative,doctor,division,date,") {
		t.Fatalf("clean header: %s", strings.SplitN(string(body), "\n", 2)[0])
	}
	rej, err := os.ReadFile(rejPath)
	if err != nil || !strings.HasPrefix(string(rej), "row,column,value,reason\n") || strings.Count(string(rej), "\n") < 2 {
		t.Fatalf("rejections csv: %q %v", rej, err)
	}

	md := runCmd(t, "report", calls, "--group-by", "division,month")
	for _, want := range []string{"[RUN SUMMARY]", "[METRICS]", "| division | period |", "[REJECTIONS]"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}

	records := func(args ...string) int {
		t.Helper()
		js := runCmd(t, append([]string{"report", calls, "--format", "json"}, args...)...)
		var doc struct {
			Summary struct {
				TotalRecords int `json:"total_records"`
			} `json:"summary"`
		}
		if err := json.Unmarshal([]byte(js), &doc); err != nil {
			t.Fatalf("json output: %v\n%s", err, js)
		}
		return doc.Summary.TotalRecords
	}
	all, filtered := records(), records("--filter", "outcome=positive")
	if filtered == 0 || filtered >= all {
		t.Fatalf("filter not applied: %d of %d records", filtered, all)
	}

	bundleDir := filepath.Join(home, "out", "calls")
	out := runCmd(t, "report", calls, "--out-dir", bundleDir)
	if !strings.Contains(out, "✓ Wrote report bundle") {
		t.Fatalf("report output: %s", out)
	}
	m, err := bundle.Load(bundleDir)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	if len(m.Files) != 8 || m.Rejected == 0 || m.CleanRows == 0 {
		t.Fatalf("manifest: %+v", m)
	}

	list := runCmd(t, "list", "--out-dir", filepath.Join(home, "out"))
	if !strings.Contains(list, "- calls: calls.csv") {
		t.Fatalf("list output: %s", list)
	}
}

func TestReportBatch_CollisionSuffix(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// Two files with the same basename in different directories
	csv := "Representative,Doctor,Division,Date,Visits\n" +
		"Rep A,Dr X,Cardio,2024-01-05,3\n" +
		"Rep B,Dr Y,Neuro,2024-01-10,2\n"
	writeFile(t, filepath.Join(home, "d1", "calls.csv"), csv)
	writeFile(t, filepath.Join(home, "d2", "calls.csv"), csv)
	outDir := filepath.Join(home, "bundles")

	out := runCmd(t, "report-batch", filepath.Join(home, "d*", "calls.csv"), "--out-dir", outDir)
	if !strings.Contains(out, "[1/2] Processing calls.csv...") || !strings.Contains(out, "[2/2] Processing calls.csv...") {
		t.Fatalf("progress lines missing:\n%s", out)
	}
	for _, name := range []string{"calls", "calls__2"} {
		if _, err := bundle.Load(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("bundle %s: %v", name, err)
		}
	}

	// A second batch must not overwrite the bundles already on disk
	runCmd(t, "report-batch", filepath.Join(home, "d1", "calls.csv"), "--out-dir", outDir, "--quiet")
	if _, err := bundle.Load(filepath.Join(outDir, "calls__3")); err != nil {
		t.Fatalf("third bundle: %v", err)
	}
}

func TestReportBatch_KeepGoing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, "a.csv"), "Representative,Doctor,Division,Date\nRep A,Dr X,Cardio,2024-01-05\n")
	writeFile(t, filepath.Join(home, "b.csv"), "Representative,Doctor\nRep A,Dr X\n")
	outDir := filepath.Join(home, "bundles")

	_, err := execCmd(t, "report-batch", filepath.Join(home, "*.csv"), "--out-dir", outDir, "--keep-going")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 file(s) failed") {
		t.Fatalf("want partial failure, got %v", err)
	}
	if _, err := bundle.Load(filepath.Join(outDir, "a")); err != nil {
		t.Fatalf("good file should still be reported: %v", err)
	}
}

func TestReport_Errors(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	noDate := filepath.Join(home, "nodate.csv")
	writeFile(t, noDate, "Representative,Doctor,Division\nRep A,Dr X,Cardio\n")

	_, err := execCmd(t, "report", noDate)
	var se *pipeline.SchemaError
	if !errors.As(err, &se) || strings.Join(se.Missing, ",") != "date" {
		t.Fatalf("want SchemaError for date, got %v", err)
	}

	allBad := filepath.Join(home, "bad.csv")
	writeFile(t, allBad, "Representative,Doctor,Division,Date\nRep A,Dr X,Cardio,not-a-date\n")
	_, err = execCmd(t, "clean", allBad)
	var ee *pipeline.EmptyResultError
	if !errors.As(err, &ee) || ee.Report.Rejected != 1 {
		t.Fatalf("want EmptyResultError, got %v", err)
	}

	if _, err := execCmd(t, "report", noDate, "--format", "pdf"); err == nil {
		t.Fatal("expected error for unsupported --format")
	}
	if _, err := execCmd(t, "report", noDate, "--group-by", "colour"); err == nil {
		t.Fatal("expected error for unknown group key")
	}
}

func TestConfig_SetShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	runCmd(t, "config", "set", "slab_bounds", "10,20,100")
	runCmd(t, "config", "set", "default_group_by", "division,quarter")
	if _, err := execCmd(t, "config", "set", "avg_per", "colour"); err == nil {
		t.Fatal("expected error for invalid avg_per")
	}
	if _, err := os.Stat(filepath.Join(home, ".callreport", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := runCmd(t, "config", "show")
	for _, want := range []string{"slab_bounds: 10, 20, 100", "default_group_by: division, quarter", "avg_per: doctor"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
}
