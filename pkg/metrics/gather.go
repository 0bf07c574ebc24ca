package metrics

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"lease-metrics/pkg/metrics/exposition"
)

var _ prometheus.Gatherer = (*Registry)(nil)

// Gather returns the published children as client_model families, sorted
// by name, with metrics and label pairs in the order Prometheus expects. It
// makes a Registry usable as a prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	if err := r.runBeforeCollect(context.Background()); err != nil {
		return nil, err
	}

	var out []*dto.MetricFamily
	for _, f := range r.familySnapshot() {
		children := f.publishedChildren()
		if len(children) == 0 {
			continue
		}
		mf := &dto.MetricFamily{
			Name:   proto.String(f.name),
			Help:   proto.String(f.help),
			Type:   dtoType(f.typ).Enum(),
			Metric: make([]*dto.Metric, 0, len(children)),
		}
		for _, ch := range children {
			m := &dto.Metric{Label: ch.base().labelPairs()}
			ch.write(m)
			mf.Metric = append(mf.Metric, m)
		}
		slices.SortFunc(mf.Metric, compareMetrics)
		out = append(out, mf)
	}

	slices.SortFunc(out, func(a, b *dto.MetricFamily) int {
		return strings.Compare(a.GetName(), b.GetName())
	})
	return out, nil
}

func dtoType(t exposition.MetricType) dto.MetricType {
	switch t {
	case exposition.TypeCounter:
		return dto.MetricType_COUNTER
	case exposition.TypeGauge:
		return dto.MetricType_GAUGE
	case exposition.TypeHistogram:
		return dto.MetricType_HISTOGRAM
	case exposition.TypeSummary:
		return dto.MetricType_SUMMARY
	default:
		return dto.MetricType_UNTYPED
	}
}

func sortLabelPairs(pairs []*dto.LabelPair) {
	slices.SortFunc(pairs, func(a, b *dto.LabelPair) int {
		return strings.Compare(a.GetName(), b.GetName())
	})
}

// compareMetrics orders metrics by their label values.
func compareMetrics(a, b *dto.Metric) int {
	if c := cmp.Compare(len(a.Label), len(b.Label)); c != 0 {
		return c
	}
	for i := range a.Label {
		if c := strings.Compare(a.Label[i].GetValue(), b.Label[i].GetValue()); c != 0 {
			return c
		}
	}
	return 0
}
