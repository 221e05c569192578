// Package sample generates synthetic sales-call logs.
package sample

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// Options controls generation. A zero Seed draws a random seed.
type Options struct {
	Rows    int
	Seed    int64
	Dirty   bool
	Reps    int
	Doctors int
	From    time.Time
	To      time.Time
}

// Header is the column layout of generated tables.
var Header = []string{"Representative", "Doctor", "Division", "Date", "Call Type", "Outcome", "Product", "Location", "HQ", "Visits"}

var (
	divisions = []string{"Cardio", "Neuro", "Onco", "Derma", "Gastro", "Ortho"}
	callTypes = []string{"in-person", "in-person", "digital", "virtual", "phone", "e-detailing"}
	outcomes  = []string{"positive", "completed", "neutral", "negative", "no-show", "compliant"}
	products  = []string{"Cardiovex", "Neurolin", "Oncopril", "Dermasol", "Gastrozen", "Osteomax"}
	altDates  = []string{"01/02/2006", "02-Jan-2006", "2006/01/02", "Jan 2, 2006"}
)

func (o Options) withDefaults() Options {
	if o.Rows <= 0 {
		o.Rows = 200
	}
	if o.Reps <= 0 {
		o.Reps = 8
	}
	if o.Doctors <= 0 {
		o.Doctors = 25
	}
	if o.From.IsZero() {
		o.From = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if o.To.IsZero() || !o.To.After(o.From) {
		o.To = o.From.AddDate(0, 6, 0)
	}
	return o
}

// Generate builds a call log. The same non-zero seed always yields the
// same table. Dirty tables mix in inconsistent casing and spacing, other
// date layouts, unparseable dates, negative and non-numeric counts, blank
// rows and exact duplicates.
func Generate(opt Options) *pipeline.RawTable {
	opt = opt.withDefaults()
	f := gofakeit.New(opt.Seed)

	reps := make([]string, opt.Reps)
	for i := range reps {
		reps[i] = f.FirstName() + " " + f.LastName()
	}
	doctors := make([]string, opt.Doctors)
	for i := range doctors {
		doctors[i] = "Dr " + f.LastName()
	}
	repDivision := make(map[string]string, len(reps))
	repHQ := make(map[string]string, len(reps))
	for _, r := range reps {
		repDivision[r] = f.RandomString(divisions)
		repHQ[r] = f.City()
	}

	t := &pipeline.RawTable{Name: "sample", Columns: append([]string(nil), Header...)}
	for i := 0; i < opt.Rows; i++ {
		rep := f.RandomString(reps)
		date := f.DateRange(opt.From, opt.To)
		row := []string{
			rep,
			f.RandomString(doctors),
			repDivision[rep],
			date.Format(pipeline.DateLayout),
			f.RandomString(callTypes),
			f.RandomString(outcomes),
			f.RandomString(products),
			f.City(),
			repHQ[rep],
			fmt.Sprintf("%d", f.Number(1, 6)),
		}
		if opt.Dirty {
			row = dirty(f, row, date, &t.Rows)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// dirty damages row in one of several ways. It may also append an extra
// blank row or duplicate to rows before row itself is added.
func dirty(f *gofakeit.Faker, row []string, date time.Time, rows *[][]string) []string {
	switch f.Number(0, 11) {
	case 0:
		row[0] = "  " + strings.ToUpper(row[0]) + " "
	case 1:
		row[1] = strings.ToLower(row[1])
		row[2] = " " + strings.ToLower(row[2])
	case 2:
		row[3] = date.Format(f.RandomString(altDates))
	case 3:
		row[3] = "not-a-date"
	case 4:
		row[9] = "-" + row[9]
	case 5:
		row[9] = "n/a"
	case 6:
		row[0] = ""
	case 7:
		*rows = append(*rows, make([]string, len(row)))
	case 8:
		*rows = append(*rows, append([]string(nil), row...))
	case 9:
		row[4] = strings.ToUpper(row[4])
	}
	return row
}
