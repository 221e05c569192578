package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date form written to clean output.
const DateLayout = "2006-01-02"

// Field identifies a canonical call-log column.
type Field string

const (
	FieldRepresentative Field = "representative"
	FieldDoctor         Field = "doctor"
	FieldDivision       Field = "division"
	FieldDate           Field = "date"
	FieldCallType       Field = "call_type"
	FieldOutcome        Field = "outcome"
	FieldProduct        Field = "product"
	FieldLocation       Field = "location"
	FieldHQ             Field = "hq"
	FieldVisits         Field = "visits"
	FieldCalls          Field = "calls"
)

// RequiredFields must be present in every input table.
var RequiredFields = []Field{FieldRepresentative, FieldDoctor, FieldDivision, FieldDate}

// OptionalFields are recognised when present, in canonical output order.
var OptionalFields = []Field{FieldCallType, FieldOutcome, FieldProduct, FieldLocation, FieldHQ, FieldVisits, FieldCalls}

var fieldAliases = map[string]Field{
	"rep":                 FieldRepresentative,
	"rep_name":            FieldRepresentative,
	"representative_name": FieldRepresentative,
	"sales_rep":           FieldRepresentative,
	"mr":                  FieldRepresentative,
	"dr":                  FieldDoctor,
	"doctor_name":         FieldDoctor,
	"physician":           FieldDoctor,
	"hcp":                 FieldDoctor,
	"bu":                  FieldDivision,
	"business_unit":       FieldDivision,
	"div":                 FieldDivision,
	"call_date":           FieldDate,
	"visit_date":          FieldDate,
	"channel":             FieldCallType,
	"type":                FieldCallType,
	"result":              FieldOutcome,
	"status":              FieldOutcome,
	"headquarters":        FieldHQ,
	"head_quarter":        FieldHQ,
	"visit_count":         FieldVisits,
	"no_of_visits":        FieldVisits,
	"number_of_visits":    FieldVisits,
	"call_count":          FieldCalls,
	"no_of_calls":         FieldCalls,
	"number_of_calls":     FieldCalls,
}

// RawTable is an untyped table as read from a file: a header row and data
// rows of cell text. Rows may be ragged.
type RawTable struct {
	Name    string
	Columns []string
	Rows    [][]string
	// Spreadsheet marks cells read raw from a workbook, where a bare number
	// in a date column is a serial day.
	Spreadsheet bool
}

// Record is one clean call event.
type Record struct {
	// Row is the 1-based data row this record came from.
	Row            int
	Representative string
	Doctor         string
	Division       string
	Date           time.Time
	CallType       string
	Outcome        string
	Product        string
	Location       string
	HQ             string
	Visits         float64
	Calls          float64
	// Count is the call weight summed by every aggregate.
	Count float64
	Extra map[string]string
}

// Value returns the textual form of a canonical field.
func (r Record) Value(f Field) string {
	switch f {
	case FieldRepresentative:
		return r.Representative
	case FieldDoctor:
		return r.Doctor
	case FieldDivision:
		return r.Division
	case FieldDate:
		if r.Date.IsZero() {
			return ""
		}
		return r.Date.Format(DateLayout)
	case FieldCallType:
		return r.CallType
	case FieldOutcome:
		return r.Outcome
	case FieldProduct:
		return r.Product
	case FieldLocation:
		return r.Location
	case FieldHQ:
		return r.HQ
	case FieldVisits:
		return formatFloat(r.Visits)
	case FieldCalls:
		return formatFloat(r.Calls)
	}
	return r.Extra[string(f)]
}

// CleanTable is the normalized, deduplicated output of Normalize. It is
// treated as an immutable value by every downstream operation.
type CleanTable struct {
	Name string
	// Fields lists the canonical columns present in the input.
	Fields []Field
	// Extra lists unrecognised input columns carried through unchanged.
	Extra []string
	// CountField is the column used as call weight; empty means one call per row.
	CountField Field
	// Decimal is the decimal mark used when numbers are written back as
	// text; zero means '.'.
	Decimal rune
	Records []Record
	Report  RejectReport
}

// Len returns the number of clean records.
func (t *CleanTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Columns returns output column names: canonical fields, then extras.
func (t *CleanTable) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+len(t.Extra))
	for _, f := range t.Fields {
		cols = append(cols, string(f))
	}
	return append(cols, t.Extra...)
}

// Has reports whether the input carried the given field.
func (t *CleanTable) Has(f Field) bool {
	for _, x := range t.Fields {
		if x == f {
			return true
		}
	}
	return false
}

// Row returns the textual cells of record i aligned with Columns.
func (t *CleanTable) Row(i int) []string {
	r := t.Records[i]
	out := make([]string, 0, len(t.Fields)+len(t.Extra))
	for _, f := range t.Fields {
		v := r.Value(f)
		if t.Decimal != 0 && t.Decimal != '.' && (f == FieldVisits || f == FieldCalls) {
			v = strings.Replace(v, ".", string(t.Decimal), 1)
		}
		out = append(out, v)
	}
	for _, x := range t.Extra {
		out = append(out, r.Extra[x])
	}
	return out
}

// Raw converts the clean table back into a RawTable with the same logical
// schema, suitable for export or for feeding back through Validate.
func (t *CleanTable) Raw() *RawTable {
	raw := &RawTable{Name: t.Name, Columns: t.Columns(), Rows: make([][]string, len(t.Records))}
	for i := range t.Records {
		raw.Rows[i] = t.Row(i)
	}
	return raw
}

// derive returns a table sharing t's schema with the given records.
func (t *CleanTable) derive(recs []Record) *CleanTable {
	return &CleanTable{
		Name:       t.Name,
		Fields:     append([]Field(nil), t.Fields...),
		Extra:      append([]string(nil), t.Extra...),
		CountField: t.CountField,
		Decimal:    t.Decimal,
		Records:    recs,
		Report:     t.Report.clone(),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatMetric renders a metric value rounded to two decimals without
// trailing zeros.
func FormatMetric(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
