package pipeline

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var callHeader = []string{"Representative", "Doctor", "Division", "Date", "Call Type", "Outcome", "Visits"}

func rawCalls(rows ...[]string) *RawTable {
	return &RawTable{Name: "calls", Columns: append([]string(nil), callHeader...), Rows: rows}
}

func mustNormalize(t *testing.T, raw *RawTable) *CleanTable {
	t.Helper()
	return mustNormalizeWith(t, raw, DefaultOptions())
}

func mustNormalizeWith(t *testing.T, raw *RawTable, opt Options) *CleanTable {
	t.Helper()
	v, err := Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	clean, err := Normalize(v, opt)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return clean
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestNormalizeDeduplicatesExample(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "3"},
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "3"},
		[]string{"Rep B", "Dr Y", "Neuro", "2024-01-10", "in-person", "neutral", "2"},
	))
	if clean.Len() != 2 {
		t.Fatalf("records: got %d want 2", clean.Len())
	}
	if clean.Report.Duplicates != 1 || clean.Report.Rejected != 0 {
		t.Fatalf("report: %+v", clean.Report)
	}
	if clean.CountField != FieldVisits {
		t.Fatalf("count field: %q", clean.CountField)
	}
	if clean.Records[0].Count != 3 || clean.Records[1].Count != 2 {
		t.Fatalf("counts: %v %v", clean.Records[0].Count, clean.Records[1].Count)
	}
}

func TestNormalizeCleansValues(t *testing.T) {
	raw := rawCalls(
		[]string{"  rep   a ", "DR x", " cardio", "01/05/2024", " Digital ", "POSITIVE", "1,000"},
		[]string{"Rep B", "Dr Y", "Neuro", "45296", "virtual", "", ""},
		[]string{"Rep C", "Dr Z", "Onco", "5-Jan-2024", "phone", "", "2,5"},
	)
	raw.Spreadsheet = true
	clean := mustNormalize(t, raw)
	r := clean.Records[0]
	if r.Representative != "Rep A" || r.Doctor != "Dr X" || r.Division != "CARDIO" {
		t.Fatalf("names: %q %q %q", r.Representative, r.Doctor, r.Division)
	}
	if r.CallType != "digital" || r.Outcome != "positive" {
		t.Fatalf("lower-cased fields: %q %q", r.CallType, r.Outcome)
	}
	if !r.Date.Equal(day(2024, 1, 5)) || r.Visits != 1000 {
		t.Fatalf("date/visits: %v %v", r.Date, r.Visits)
	}
	if d := clean.Records[1].Date; !d.Equal(day(2024, 1, 5)) {
		t.Fatalf("serial date: %v", d)
	}
	if clean.Records[1].Visits != 0 {
		t.Fatalf("blank visits should be 0, got %v", clean.Records[1].Visits)
	}
	if d := clean.Records[2].Date; !d.Equal(day(2024, 1, 5)) {
		t.Fatalf("named-month date: %v", d)
	}
	if v := clean.Records[2].Visits; v != 2.5 {
		t.Fatalf("decimal comma: %v", v)
	}
	if got := clean.Row(0); got[3] != "2024-01-05" || got[6] != "1000" {
		t.Fatalf("row text: %v", got)
	}
}

func TestNormalizeRejectsBadRows(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "3"},
		[]string{"Rep A", "Dr X", "Cardio", "not-a-date", "digital", "positive", "3"},
		[]string{"Rep B", "Dr Y", "Neuro", "2024-01-10", "digital", "positive", "-2"},
		[]string{"", "Dr Y", "Neuro", "2024-01-10", "digital", "positive", "2"},
		[]string{"", "", "", "", "", "", ""},
		[]string{"Rep C", "Dr Z", "Onco", "2024-01-11", "digital", "positive", "lots"},
	))
	rep := clean.Report
	if rep.InputRows != 6 || rep.Rejected != 3 || rep.BlankRows != 1 || rep.Coerced != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if clean.Len() != 2 {
		t.Fatalf("records: %d", clean.Len())
	}
	want := []DataError{
		{Row: 2, Column: "date", Value: "not-a-date", Reason: ReasonBadDate},
		{Row: 3, Column: "visits", Value: "-2", Reason: ReasonNegative},
		{Row: 4, Column: "representative", Reason: ReasonMissingField},
	}
	if !reflect.DeepEqual(rep.Samples, want) {
		t.Fatalf("samples:\n got %+v\nwant %+v", rep.Samples, want)
	}
	counts := rep.ReasonCounts()
	if len(counts) != 3 || counts[0].Count != 1 {
		t.Fatalf("reason counts: %+v", counts)
	}
}

func TestNormalizeSampleCap(t *testing.T) {
	var rows [][]string
	for i := 0; i < 15; i++ {
		rows = append(rows, []string{"Rep A", "Dr X", "Cardio", "bad", "", "", "1"})
	}
	rows = append(rows, []string{"Rep A", "Dr X", "Cardio", "2024-01-01", "", "", "1"})
	clean := mustNormalize(t, rawCalls(rows...))
	if clean.Report.Rejected != 15 || len(clean.Report.Samples) != 10 {
		t.Fatalf("rejected=%d samples=%d", clean.Report.Rejected, len(clean.Report.Samples))
	}
}

func TestNormalizeAllRejected(t *testing.T) {
	v, err := Validate(rawCalls([]string{"Rep A", "Dr X", "Cardio", "nope", "", "", "1"}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	_, err = Normalize(v, DefaultOptions())
	var ee *EmptyResultError
	if !errors.As(err, &ee) {
		t.Fatalf("want EmptyResultError, got %v", err)
	}
	if ee.Report.Rejected != 1 || ee.Filtered {
		t.Fatalf("report: %+v", ee)
	}

	v, _ = Validate(rawCalls())
	if _, err := Normalize(v, DefaultOptions()); !errors.As(err, &ee) {
		t.Fatalf("empty input: want EmptyResultError, got %v", err)
	}
}

func TestNormalizeDedupKeepsFirstOccurrence(t *testing.T) {
	clean := mustNormalize(t, rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "3"},
		[]string{"rep a", "dr x", "CARDIO", "5-Jan-2024", "in-person", "negative", "9"},
	))
	if clean.Len() != 1 {
		t.Fatalf("records: %d", clean.Len())
	}
	if r := clean.Records[0]; r.Row != 1 || r.CallType != "digital" || r.Visits != 3 {
		t.Fatalf("kept wrong row: %+v", r)
	}
}

func TestNormalizeCountWeight(t *testing.T) {
	raw := &RawTable{
		Columns: []string{"rep", "doctor", "division", "date", "visits", "calls"},
		Rows:    [][]string{{"A", "X", "C", "2024-01-01", "5", "2"}},
	}
	clean := mustNormalize(t, raw)
	if clean.CountField != FieldCalls || clean.Records[0].Count != 2 {
		t.Fatalf("calls column should win: %q %v", clean.CountField, clean.Records[0].Count)
	}

	raw = &RawTable{
		Columns: []string{"rep", "doctor", "division", "date"},
		Rows:    [][]string{{"A", "X", "C", "2024-01-01"}},
	}
	clean = mustNormalize(t, raw)
	if clean.CountField != "" || clean.Records[0].Count != 1 {
		t.Fatalf("no count column means one call per row: %q %v", clean.CountField, clean.Records[0].Count)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := &RawTable{
		Columns: []string{"Sales Rep", "Doctor", "BU", "Call Date", "Channel", "Outcome", "Visits", "Notes"},
		Rows: [][]string{
			{"  jane   DOE ", "dr o'neil", "cardio", "01/05/2024", "Digital", "Positive", "1.234,5", " first  note "},
			{"Jane Doe", "Dr Smith", "Neuro", "2024/01/06", "", "", "abc", ""},
			{"Bob", "Dr Smith", "neuro", "45300", "VIRTUAL", "completed", "2", "x"},
		},
		Spreadsheet: true,
	}
	commaDecimal := DefaultOptions()
	commaDecimal.DecimalSeparator = ','
	thousandsDot := DefaultOptions()
	thousandsDot.ThousandsSeparator = '.'

	for _, tc := range []struct {
		name string
		opt  Options
	}{
		{"auto", DefaultOptions()},
		{"comma decimal", commaDecimal},
		{"dot thousands", thousandsDot},
	} {
		t.Run(tc.name, func(t *testing.T) {
			first := mustNormalizeWith(t, raw, tc.opt)
			if v := first.Records[0].Visits; v != 1234.5 {
				t.Fatalf("first pass visits: %v", v)
			}
			second := mustNormalizeWith(t, first.Raw(), tc.opt)
			if !reflect.DeepEqual(first.Raw(), second.Raw()) {
				t.Fatalf("normalize not idempotent:\nfirst  %v\nsecond %v", first.Raw(), second.Raw())
			}
			if !reflect.DeepEqual(first.Records, second.Records) {
				t.Fatalf("records changed on second pass:\nfirst  %+v\nsecond %+v", first.Records, second.Records)
			}
			if second.Report.Rejected != 0 || second.Report.Duplicates != 0 {
				t.Fatalf("second pass report: %+v", second.Report)
			}
		})
	}
}

func TestNormalizeCommaDecimalRoundTrip(t *testing.T) {
	opt := DefaultOptions()
	opt.DecimalSeparator = ','
	first := mustNormalizeWith(t, rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024-01-05", "digital", "positive", "1,5"},
	), opt)
	if got := first.Row(0)[6]; got != "1,5" {
		t.Fatalf("visits written as %q, want the configured decimal mark", got)
	}
	second := mustNormalizeWith(t, first.Raw(), opt)
	if v := second.Records[0].Visits; v != 1.5 {
		t.Fatalf("second pass visits: %v", v)
	}
}

func TestNormalizeRejectsBareNumberDates(t *testing.T) {
	raw := rawCalls(
		[]string{"Rep A", "Dr X", "Cardio", "2024", "", "", "1"},
		[]string{"Rep A", "Dr X", "Cardio", "500", "", "", "1"},
		[]string{"Rep A", "Dr X", "Cardio", "12345", "", "", "1"},
		[]string{"Rep B", "Dr Y", "Neuro", "2024-01-05", "", "", "1"},
	)
	clean := mustNormalize(t, raw)
	if clean.Len() != 1 || clean.Records[0].Representative != "Rep B" {
		t.Fatalf("delimited input must not read numbers as serial dates: %+v", clean.Records)
	}
	if clean.Report.Rejected != 3 || clean.Report.Reasons[ReasonBadDate] != 3 {
		t.Fatalf("report: %+v", clean.Report)
	}

	raw = rawCalls([]string{"Rep A", "Dr X", "Cardio", "45296", "", "", "1"})
	raw.Spreadsheet = true
	if d := mustNormalize(t, raw).Records[0].Date; !d.Equal(day(2024, 1, 5)) {
		t.Fatalf("workbook serial date: %v", d)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"1,000", 1000, true},
		{"2,5", 2.5, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"12%", 12, true},
		{"-3", -3, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseNumber(tc.in, 0, 0)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseNumber(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseNumberConfiguredSeparators(t *testing.T) {
	cases := []struct {
		in        string
		dec, thou rune
		want      float64
	}{
		{"2,5", 0, ',', 25},
		{"1,234.5", 0, ',', 1234.5},
		{"2.5", 0, '.', 25},
		{"1.234,5", 0, '.', 1234.5},
		{"1,5", ',', 0, 1.5},
		{"1.234,5", ',', '.', 1234.5},
		{"1 234,5", ',', ' ', 1234.5},
	}
	for _, tc := range cases {
		got, ok := parseNumber(tc.in, tc.dec, tc.thou)
		if !ok || got != tc.want {
			t.Errorf("parseNumber(%q, %q, %q) = %v,%v want %v", tc.in, tc.dec, tc.thou, got, ok, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-05", day(2024, 1, 5), true},
		{"2024-01-05 13:45:00", day(2024, 1, 5), true},
		{"2024-01-05T23:30:00Z", day(2024, 1, 5), true},
		{"01/05/2024", day(2024, 1, 5), true},
		{"Jan 5, 2024", day(2024, 1, 5), true},
		{"20240105", day(2024, 1, 5), true},
		{"45296", day(2024, 1, 5), true},
		{"12", time.Time{}, false},
		{"not-a-date", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := parseDate(tc.in, DefaultDateFormats, true)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Errorf("parseDate(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
