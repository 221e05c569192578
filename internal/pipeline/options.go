package pipeline

import (
	"fmt"
	"math"
	"strings"
)

// Options controls normalization and metric derivation. Business rules
// (channels, outcomes, slab thresholds) are configuration, not constants.
type Options struct {
	// DateFormats are tried in order; the first layout that parses wins.
	DateFormats []string
	// SerialDates accepts spreadsheet serial day numbers after all layouts
	// fail. It applies only to tables read from a workbook.
	SerialDates bool
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// DigitalChannels lists call_type values counted as E-detailing.
	DigitalChannels []string
	// CompliantOutcomes lists outcome values counted as compliant.
	CompliantOutcomes []string
	// SlabBounds are ascending band upper bounds for the E-detailing slab.
	SlabBounds []float64
	// AvgPer is the entity used for avg_calls (calls per distinct entity).
	AvgPer Field
	// RejectSamples caps how many offending rows the report keeps.
	RejectSamples int
}

// DefaultDateFormats is the prioritized layout list used when none is configured.
var DefaultDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02.01.2006",
	"20060102",
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		DateFormats:       append([]string(nil), DefaultDateFormats...),
		SerialDates:       true,
		DigitalChannels:   []string{"digital", "virtual", "e-detailing", "edetailing", "remote", "video"},
		CompliantOutcomes: []string{"positive", "compliant", "completed", "successful"},
		SlabBounds:        []float64{25, 50, 75, 100},
		AvgPer:            FieldDoctor,
		RejectSamples:     10,
	}
}

// Check reports configuration problems before any data is touched.
func (o Options) Check() error {
	if _, err := Bands(o.SlabBounds); err != nil {
		return err
	}
	switch o.AvgPer {
	case "", FieldDoctor, FieldRepresentative, FieldDivision, FieldProduct, FieldLocation, FieldHQ:
	default:
		return fmt.Errorf("unsupported avg_per %q (use doctor, representative or division)", o.AvgPer)
	}
	return nil
}

func (o Options) avgPer() Field {
	if o.AvgPer == "" {
		return FieldDoctor
	}
	return o.AvgPer
}

func (o Options) dateFormats() []string {
	if len(o.DateFormats) == 0 {
		return DefaultDateFormats
	}
	return o.DateFormats
}

// decimalMark is the decimal separator implied by the locale options, or
// zero when it is detected per value.
func (o Options) decimalMark() rune {
	switch {
	case o.DecimalSeparator != 0:
		return o.DecimalSeparator
	case o.ThousandsSeparator == ',':
		return '.'
	case o.ThousandsSeparator == '.':
		return ','
	}
	return 0
}

func foldSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.Join(strings.Fields(v), " "))
		if v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

// Band is one slab: values in (Lower, Upper] belong to it; the first band
// also includes its Lower bound.
type Band struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Bands builds slab bands from ascending upper bounds starting at 0.
func Bands(bounds []float64) ([]Band, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("slab bounds: at least one bound is required")
	}
	bands := make([]Band, 0, len(bounds))
	lower := 0.0
	for i, up := range bounds {
		if math.IsNaN(up) || math.IsInf(up, 0) || up <= lower {
			return nil, fmt.Errorf("slab bounds: bound %d (%v) must be greater than %v", i+1, up, lower)
		}
		bands = append(bands, Band{Label: formatFloat(lower) + "-" + formatFloat(up), Lower: lower, Upper: up})
		lower = up
	}
	return bands, nil
}

// Unbanded labels values no band covers.
const Unbanded = "unbanded"

// Slab returns the label of the band v falls in. Boundaries are
// lower-exclusive and upper-inclusive: 25 belongs to 0-25, not 25-50.
func Slab(v float64, bands []Band) string {
	for i, b := range bands {
		if v > b.Upper {
			continue
		}
		if v > b.Lower || (i == 0 && v == b.Lower) {
			return b.Label
		}
		break
	}
	return Unbanded
}
