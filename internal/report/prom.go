package report

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

const metricPrefix = "callreport_"

// WritePrometheus writes res as Prometheus text exposition, suitable for a
// node_exporter textfile collector. Every sample carries a source label.
func WritePrometheus(w io.Writer, res *pipeline.Result) error {
	for _, mf := range MetricFamilies(res) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// MetricFamilies converts res into gauge families.
func MetricFamilies(res *pipeline.Result) []*dto.MetricFamily {
	src := res.Clean.Name
	rep := res.Report()
	s := res.Summary

	rows := gauge("rows", "Input rows by processing outcome.")
	for _, kv := range []struct {
		state string
		n     int
	}{
		{"input", rep.InputRows},
		{"clean", res.Clean.Len()},
		{"rejected", rep.Rejected},
		{"duplicate", rep.Duplicates},
		{"blank", rep.BlankRows},
		{"coerced", rep.Coerced},
	} {
		rows.Metric = append(rows.Metric, sample(float64(kv.n), "source", src, "state", kv.state))
	}

	rejections := gauge("rejections", "Rejected rows by reason.")
	for _, rc := range rep.ReasonCounts() {
		rejections.Metric = append(rejections.Metric, sample(float64(rc.Count), "source", src, "reason", rc.Reason))
	}

	unique := gauge("unique", "Distinct values per entity.")
	for _, kv := range []struct {
		entity string
		n      int
	}{
		{"representative", s.UniqueRepresentatives},
		{"doctor", s.UniqueDoctors},
		{"division", s.UniqueDivisions},
	} {
		unique.Metric = append(unique.Metric, sample(float64(kv.n), "source", src, "entity", kv.entity))
	}

	total := gauge("calls", "Total call weight across clean rows.")
	total.Metric = append(total.Metric, sample(s.TotalCalls, "source", src))
	edet := gauge("e_detailing_pct", "Share of calls made over digital channels.")
	edet.Metric = append(edet.Metric, sample(s.EDetailingPct, "source", src))
	comp := gauge("compliance_pct", "Share of calls with a compliant outcome.")
	comp.Metric = append(comp.Metric, sample(s.CompliancePct, "source", src))

	fams := []*dto.MetricFamily{rows}
	if len(rejections.Metric) > 0 {
		// Empty families are not valid exposition.
		fams = append(fams, rejections)
	}
	fams = append(fams, unique, total, edet, comp)

	if m := res.Metrics; m != nil && len(m.Rows) > 0 {
		gCalls := gauge("group_calls", "Call weight per metric group.")
		gAvg := gauge("group_avg_calls", "Calls per distinct entity per metric group.")
		gEdet := gauge("group_e_detailing_pct", "E-detailing percentage per metric group.")
		gComp := gauge("group_compliance_pct", "Compliance percentage per metric group.")
		for i, r := range m.Rows {
			group := m.Label(i)
			gCalls.Metric = append(gCalls.Metric, sample(r.Calls, "source", src, "group", group))
			gAvg.Metric = append(gAvg.Metric, sample(r.AvgCalls, "source", src, "group", group))
			gEdet.Metric = append(gEdet.Metric, sample(r.EDetailingPct, "source", src, "group", group, "slab", r.Slab))
			gComp.Metric = append(gComp.Metric, sample(r.CompliancePct, "source", src, "group", group))
		}
		fams = append(fams, gCalls, gAvg, gEdet, gComp)
	}
	return fams
}

func gauge(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(metricPrefix + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func sample(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(labels[i]), Value: proto.String(labels[i+1])})
	}
	return m
}
