package pipeline

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalizer holds per-run casers; x/text casers are not safe for
// concurrent use, so each run owns its own.
type normalizer struct {
	opt     Options
	title   cases.Caser
	upper   cases.Caser
	lower   cases.Caser
	layouts []string
	serials bool
}

func newNormalizer(opt Options) *normalizer {
	return &normalizer{
		opt:     opt,
		title:   cases.Title(language.Und),
		upper:   cases.Upper(language.Und),
		lower:   cases.Lower(language.Und),
		layouts: opt.dateFormats(),
	}
}

// Normalize trims and case-folds strings, parses dates and counts, rejects
// rows that violate row-level rules, and removes duplicates on
// (representative, doctor, division, date) keeping the first occurrence in
// file order. Rejected rows are collected in the table's Report. If no row
// survives, an *EmptyResultError carrying the report is returned.
func Normalize(v *ValidatedTable, opt Options) (*CleanTable, error) {
	if v == nil {
		return nil, errors.New("normalize: nil table")
	}
	n := newNormalizer(opt)
	n.serials = opt.SerialDates && v.raw.Spreadsheet
	out := &CleanTable{
		Name:       v.raw.Name,
		Fields:     v.Fields(),
		Extra:      append([]string(nil), v.extraNames...),
		CountField: countField(v),
		Decimal:    opt.decimalMark(),
	}
	type dedupKey struct {
		rep, doctor, division string
		date                  time.Time
	}
	seen := map[dedupKey]struct{}{}
	for i, row := range v.raw.Rows {
		out.Report.InputRows++
		if blankRow(row) {
			out.Report.BlankRows++
			continue
		}
		rec, derr := n.record(v, row, i+1, &out.Report)
		if derr != nil {
			out.Report.reject(*derr, opt.RejectSamples)
			continue
		}
		rec.Count = 1
		switch out.CountField {
		case FieldCalls:
			rec.Count = rec.Calls
		case FieldVisits:
			rec.Count = rec.Visits
		}
		k := dedupKey{rec.Representative, rec.Doctor, rec.Division, rec.Date}
		if _, dup := seen[k]; dup {
			out.Report.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		out.Records = append(out.Records, rec)
	}
	if len(out.Records) == 0 {
		return nil, &EmptyResultError{Report: out.Report}
	}
	return out, nil
}

func countField(v *ValidatedTable) Field {
	if _, ok := v.index[FieldCalls]; ok {
		return FieldCalls
	}
	if _, ok := v.index[FieldVisits]; ok {
		return FieldVisits
	}
	return ""
}

func (n *normalizer) record(v *ValidatedTable, row []string, rowNum int, rep *RejectReport) (Record, *DataError) {
	rec := Record{Row: rowNum}
	get := func(f Field) string {
		idx, ok := v.index[f]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	rec.Representative = n.title.String(collapse(get(FieldRepresentative)))
	rec.Doctor = n.title.String(collapse(get(FieldDoctor)))
	rec.Division = n.upper.String(collapse(get(FieldDivision)))
	rawDate := collapse(get(FieldDate))
	for _, f := range RequiredFields {
		var val string
		switch f {
		case FieldRepresentative:
			val = rec.Representative
		case FieldDoctor:
			val = rec.Doctor
		case FieldDivision:
			val = rec.Division
		case FieldDate:
			val = rawDate
		}
		if val == "" {
			return rec, &DataError{Row: rowNum, Column: string(f), Reason: ReasonMissingField}
		}
	}
	d, ok := parseDate(rawDate, n.layouts, n.serials)
	if !ok {
		return rec, &DataError{Row: rowNum, Column: string(FieldDate), Value: rawDate, Reason: ReasonBadDate}
	}
	rec.Date = d

	rec.CallType = n.lower.String(collapse(get(FieldCallType)))
	rec.Outcome = n.lower.String(collapse(get(FieldOutcome)))
	rec.Product = n.title.String(collapse(get(FieldProduct)))
	rec.Location = n.title.String(collapse(get(FieldLocation)))
	rec.HQ = n.title.String(collapse(get(FieldHQ)))

	for _, f := range []Field{FieldVisits, FieldCalls} {
		if _, present := v.index[f]; !present {
			continue
		}
		s := collapse(get(f))
		x, ok := parseNumber(s, n.opt.decimalMark(), n.opt.ThousandsSeparator)
		if !ok {
			if s != "" {
				rep.Coerced++
			}
			x = 0
		}
		if x < 0 {
			return rec, &DataError{Row: rowNum, Column: string(f), Value: s, Reason: ReasonNegative}
		}
		if f == FieldVisits {
			rec.Visits = x
		} else {
			rec.Calls = x
		}
	}

	if len(v.extraIdx) > 0 {
		rec.Extra = make(map[string]string, len(v.extraIdx))
		for j, idx := range v.extraIdx {
			val := ""
			if idx < len(row) {
				val = collapse(row[idx])
			}
			rec.Extra[v.extraNames[j]] = val
		}
	}
	return rec, nil
}

// collapse trims s and folds internal whitespace runs to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
