// Package exposition renders metric families into the Prometheus 0.0.4 and
// OpenMetrics 1.0.0 text formats and into length-delimited protobuf.
package exposition

import (
	"net/http"

	"github.com/prometheus/common/expfmt"
)

// Format selects the output encoding of a collection pass.
type Format int

const (
	// FormatPrometheus is the legacy text format. It carries no exemplars
	// and no explicit timestamps.
	FormatPrometheus Format = iota
	// FormatOpenMetrics is the OpenMetrics text format. Exemplars are
	// supported and the output ends with "# EOF".
	FormatOpenMetrics
)

// Content types announced to scrapers.
const (
	ContentTypePrometheus  = "text/plain; version=0.0.4; charset=utf-8"
	ContentTypeOpenMetrics = "application/openmetrics-text; version=1.0.0; charset=utf-8"
)

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	if f == FormatOpenMetrics {
		return ContentTypeOpenMetrics
	}
	return ContentTypePrometheus
}

func (f Format) String() string {
	switch f {
	case FormatPrometheus:
		return "prometheus"
	case FormatOpenMetrics:
		return "openmetrics"
	default:
		return "unknown"
	}
}

// NegotiateFormat picks the text format from a scrape request's Accept
// header. OpenMetrics is chosen only when the scraper asks for it.
func NegotiateFormat(h http.Header) Format {
	if expfmt.NegotiateIncludingOpenMetrics(h).FormatType() == expfmt.TypeOpenMetrics {
		return FormatOpenMetrics
	}
	return FormatPrometheus
}

// MetricType is the family type written in the TYPE declaration.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
	TypeSummary
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	case TypeSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Suffix identifies which sample of a family a metric point belongs to.
type Suffix int

const (
	SuffixNone Suffix = iota
	SuffixBucket
	SuffixSum
	SuffixCount
)

func (s Suffix) String() string {
	switch s {
	case SuffixBucket:
		return "_bucket"
	case SuffixSum:
		return "_sum"
	case SuffixCount:
		return "_count"
	default:
		return ""
	}
}
