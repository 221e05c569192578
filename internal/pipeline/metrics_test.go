package pipeline

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func metricFixture(t *testing.T) *CleanTable {
	t.Helper()
	return mustNormalize(t, rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "3"},
		[]string{"Rep A", "Dr Y", "Cardio", "2024-02-10", "in-person", "negative", "1"},
		[]string{"Rep B", "Dr Y", "Neuro", "2024-01-10", "virtual", "completed", "2"},
		[]string{"Rep B", "Dr Z", "Neuro", "2024-01-11", "in-person", "positive", "2"},
	))
}

func TestSlabBoundaries(t *testing.T) {
	bands, err := Bands([]float64{25, 50, 75, 100})
	if err != nil {
		t.Fatalf("bands: %v", err)
	}
	cases := map[float64]string{
		0:      "0-25",
		0.01:   "0-25",
		25:     "0-25",
		25.001: "25-50",
		50:     "25-50",
		50.5:   "50-75",
		75:     "50-75",
		75.1:   "75-100",
		100:    "75-100",
		100.1:  Unbanded,
		-1:     Unbanded,
	}
	for v, want := range cases {
		if got := Slab(v, bands); got != want {
			t.Errorf("Slab(%v) = %q want %q", v, got, want)
		}
	}
}

func TestBandsRejectsBadBounds(t *testing.T) {
	for _, b := range [][]float64{nil, {0}, {25, 25}, {50, 25}, {-5, 10}, {math.NaN()}} {
		if _, err := Bands(b); err == nil {
			t.Errorf("Bands(%v) should fail", b)
		}
	}
}

func TestDeriveMetricsByRepresentative(t *testing.T) {
	m, err := DeriveMetrics(metricFixture(t), []GroupKey{KeyRepresentative}, "", DefaultOptions())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(m.Rows) != 2 {
		t.Fatalf("rows: %d", len(m.Rows))
	}
	a, b := m.Rows[0], m.Rows[1]
	if a.Group[0] != "Rep A" || b.Group[0] != "Rep B" {
		t.Fatalf("order: %v %v", a.Group, b.Group)
	}
	if a.Calls != 4 || a.Entities != 2 || a.AvgCalls != 2 || a.EDetailingPct != 75 || a.CompliancePct != 75 || a.Slab != "50-75" {
		t.Fatalf("Rep A: %+v", a)
	}
	if b.Calls != 4 || b.EDetailingPct != 50 || b.CompliancePct != 100 || b.Slab != "25-50" {
		t.Fatalf("Rep B: %+v", b)
	}
	wantCols := []string{"representative", "records", "calls", "avg_calls", "e_detailing_pct", "compliance_pct", "slab"}
	if !reflect.DeepEqual(m.Columns(), wantCols) {
		t.Fatalf("columns: %v", m.Columns())
	}
	if got := m.Cells(0); !reflect.DeepEqual(got, []string{"Rep A", "2", "4", "2", "75", "75", "50-75"}) {
		t.Fatalf("cells: %v", got)
	}
}

func TestDeriveMetricsByDivisionAndMonth(t *testing.T) {
	keys, period, err := ParseGroupKeys([]string{"bu,month"})
	if err != nil {
		t.Fatalf("parse keys: %v", err)
	}
	m, err := DeriveMetrics(metricFixture(t), keys, period, DefaultOptions())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var got [][]string
	for _, r := range m.Rows {
		got = append(got, r.Group)
	}
	want := [][]string{{"CARDIO", "2024-01"}, {"CARDIO", "2024-02"}, {"NEURO", "2024-01"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("groups: %v", got)
	}
	if m.Label(0) != "division=CARDIO | period=2024-01" {
		t.Fatalf("label: %q", m.Label(0))
	}
}

func TestDeriveMetricsPeriodIsChronological(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"A", "X", "D", "2024-11-20", "", "", "1"},
		[]string{"A", "X", "D", "2024-02-01", "", "", "1"},
		[]string{"A", "X", "D", "2023-12-31", "", "", "1"},
	))
	for period, want := range map[Period][]string{
		PeriodDay:     {"2023-12-31", "2024-02-01", "2024-11-20"},
		PeriodWeek:    {"2023-W52", "2024-W05", "2024-W47"},
		PeriodMonth:   {"2023-12", "2024-02", "2024-11"},
		PeriodQuarter: {"2023-Q4", "2024-Q1", "2024-Q4"},
		PeriodYear:    {"2023", "2024"},
	} {
		m, err := DeriveMetrics(clean, []GroupKey{KeyPeriod}, period, DefaultOptions())
		if err != nil {
			t.Fatalf("%s: %v", period, err)
		}
		var got []string
		for _, r := range m.Rows {
			got = append(got, r.Group[0])
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %v want %v", period, got, want)
		}
	}
}

func TestDeriveMetricsNoKeys(t *testing.T) {
	m, err := DeriveMetrics(metricFixture(t), nil, "", DefaultOptions())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(m.Rows) != 1 || m.Rows[0].Group[0] != AllGroup || m.Rows[0].Calls != 8 {
		t.Fatalf("overall group: %+v", m.Rows)
	}
	if m.Columns()[0] != "group" || m.Label(0) != AllGroup {
		t.Fatalf("columns/label: %v %q", m.Columns(), m.Label(0))
	}
}

func TestDeriveMetricsZeroCallsGivesZeroPct(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"A", "X", "D", "2024-01-01", "digital", "positive", "0"},
		[]string{"A", "Y", "D", "2024-01-02", "digital", "positive", ""},
	))
	m, err := DeriveMetrics(clean, []GroupKey{KeyRepresentative}, "", DefaultOptions())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	r := m.Rows[0]
	if r.Calls != 0 || r.EDetailingPct != 0 || r.CompliancePct != 0 || r.AvgCalls != 0 || r.Slab != "0-25" {
		t.Fatalf("zero-call group: %+v", r)
	}
}

func TestDeriveMetricsAvgPer(t *testing.T) {
	opt := DefaultOptions()
	opt.AvgPer = FieldRepresentative
	m, err := DeriveMetrics(metricFixture(t), []GroupKey{KeyDivision}, "", opt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if m.AvgPer != FieldRepresentative || m.Rows[0].Entities != 1 || m.Rows[0].AvgCalls != 4 {
		t.Fatalf("avg per representative: %+v", m.Rows[0])
	}
}

func TestDeriveMetricsBlankGroupValue(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"A", "X", "D", "2024-01-01", "", "", "1"},
		[]string{"A", "Y", "D", "2024-01-02", "digital", "", "1"},
	))
	m, err := DeriveMetrics(clean, []GroupKey{KeyCallType}, "", DefaultOptions())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if m.Rows[0].Group[0] != BlankValue || m.Rows[1].Group[0] != "digital" {
		t.Fatalf("groups: %v %v", m.Rows[0].Group, m.Rows[1].Group)
	}
}

func TestDeriveMetricsErrors(t *testing.T) {
	clean := metricFixture(t)
	if _, err := DeriveMetrics(clean, []GroupKey{"nope"}, "", DefaultOptions()); err == nil {
		t.Fatal("unknown key should fail")
	}
	if _, err := DeriveMetrics(clean, []GroupKey{KeyDoctor, KeyDoctor}, "", DefaultOptions()); err == nil {
		t.Fatal("duplicate key should fail")
	}
	var ee *EmptyResultError
	if _, err := DeriveMetrics(&CleanTable{}, nil, "", DefaultOptions()); !errors.As(err, &ee) {
		t.Fatalf("empty table: want EmptyResultError, got %v", err)
	}
}

func TestParseGroupKeys(t *testing.T) {
	keys, p, err := ParseGroupKeys([]string{"Rep", "week"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(keys, []GroupKey{KeyRepresentative, KeyPeriod}) || p != PeriodWeek {
		t.Fatalf("got %v %q", keys, p)
	}
	for _, bad := range [][]string{{"colour"}, {"month,week"}, {"doctor", "physician"}} {
		if _, _, err := ParseGroupKeys(bad); err == nil {
			t.Errorf("ParseGroupKeys(%v) should fail", bad)
		}
	}
	if _, err := ParsePeriod("fortnight"); err == nil {
		t.Error("ParsePeriod should reject unknown periods")
	}
}
