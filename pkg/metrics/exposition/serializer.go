package exposition

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"lease-metrics/pkg/metrics/labels"
)

// Serializer receives the output of one collection pass.
//
// Calls arrive in this order: for each family one WriteFamilyDeclaration
// followed by that family's WriteMetricPoint calls, then WriteEnd and Flush.
// A Serializer is used by a single goroutine.
type Serializer interface {
	// WriteFamilyDeclaration starts a family.
	WriteFamilyDeclaration(ctx context.Context, name, help string, typ MetricType) error

	// WriteMetricPoint writes one sample of the current family.
	//
	// Parameters:
	//   - name: family name as registered
	//   - suffix: sample suffix (bucket, sum, count or none)
	//   - flattened: instance and static labels of the child, pre-rendered
	//   - canonical: optional numeric label (le, quantile) placed last
	//   - value: sample value
	//   - exemplar: optional exemplar; only OpenMetrics output carries it
	WriteMetricPoint(ctx context.Context, name string, suffix Suffix, flattened labels.Set,
		canonical *labels.Canonical, value float64, exemplar *Exemplar) error

	// WriteEnd terminates the exposition.
	WriteEnd(ctx context.Context) error

	// Flush pushes buffered output to the underlying writer.
	Flush(ctx context.Context) error
}

// TextSerializer implements Serializer for both text formats.
type TextSerializer struct {
	w      *bufio.Writer
	format Format
	typ    MetricType
	buf    []byte
}

// NewTextSerializer creates a serializer writing the given format to w.
func NewTextSerializer(w io.Writer, format Format) *TextSerializer {
	return &TextSerializer{
		w:      bufio.NewWriter(w),
		format: format,
		buf:    make([]byte, 0, 256),
	}
}

// Format returns the format this serializer writes.
func (s *TextSerializer) Format() Format { return s.format }

func (s *TextSerializer) openMetrics() bool { return s.format == FormatOpenMetrics }

// WriteFamilyDeclaration writes the HELP and TYPE lines. In OpenMetrics output
// a counter family is declared without its "_total" suffix.
func (s *TextSerializer) WriteFamilyDeclaration(ctx context.Context, name, help string, typ MetricType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.typ = typ
	if s.openMetrics() && typ == TypeCounter {
		name = strings.TrimSuffix(name, "_total")
	}

	b := s.buf[:0]
	if help != "" {
		b = append(b, "# HELP "...)
		b = append(b, name...)
		b = append(b, ' ')
		b = appendEscapedHelp(b, help, s.openMetrics())
		b = append(b, '\n')
	}
	b = append(b, "# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ.String()...)
	b = append(b, '\n')
	s.buf = b

	_, err := s.w.Write(b)
	return err
}

// WriteMetricPoint writes one sample line. An exemplar is validated before
// any byte of the line is written.
func (s *TextSerializer) WriteMetricPoint(ctx context.Context, name string, suffix Suffix, flattened labels.Set,
	canonical *labels.Canonical, value float64, exemplar *Exemplar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	om := s.openMetrics()
	withExemplar := om && exemplar != nil && s.carriesExemplar(suffix)
	if withExemplar {
		if err := exemplar.Validate(); err != nil {
			return fmt.Errorf("metric %s: %w", name, err)
		}
	}

	b := s.buf[:0]
	if om && s.typ == TypeCounter && suffix == SuffixNone {
		b = append(b, strings.TrimSuffix(name, "_total")...)
		b = append(b, "_total"...)
	} else {
		b = append(b, name...)
		b = append(b, suffix.String()...)
	}

	if !flattened.IsEmpty() || canonical != nil {
		b = append(b, '{')
		if !flattened.IsEmpty() {
			if om {
				b = append(b, flattened.OpenMetrics()...)
			} else {
				b = append(b, flattened.Prometheus()...)
			}
		}
		if canonical != nil {
			if !flattened.IsEmpty() {
				b = append(b, ',')
			}
			b = append(b, canonical.Render(om)...)
		}
		b = append(b, '}')
	}

	b = append(b, ' ')
	// Bucket and count samples are integers and keep their integer form.
	b = labels.AppendFloat(b, value, om && suffix != SuffixBucket && suffix != SuffixCount)
	if withExemplar {
		b = appendExemplar(b, exemplar)
	}
	b = append(b, '\n')
	s.buf = b

	_, err := s.w.Write(b)
	return err
}

// carriesExemplar reports whether the current sample may hold an exemplar:
// counter values and histogram buckets.
func (s *TextSerializer) carriesExemplar(suffix Suffix) bool {
	switch s.typ {
	case TypeCounter:
		return suffix == SuffixNone
	case TypeHistogram:
		return suffix == SuffixBucket
	default:
		return false
	}
}

// WriteEnd writes the OpenMetrics EOF marker. It is a no-op for the
// Prometheus format.
func (s *TextSerializer) WriteEnd(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.openMetrics() {
		return nil
	}
	_, err := s.w.WriteString("# EOF\n")
	return err
}

// Flush flushes the buffered writer.
func (s *TextSerializer) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.w.Flush()
}

func appendEscapedHelp(b []byte, help string, openMetrics bool) []byte {
	for i := 0; i < len(help); i++ {
		switch c := help[i]; {
		case c == '\\':
			b = append(b, '\\', '\\')
		case c == '\n':
			b = append(b, '\\', 'n')
		case c == '"' && openMetrics:
			b = append(b, '\\', '"')
		default:
			b = append(b, c)
		}
	}
	return b
}

var _ Serializer = (*TextSerializer)(nil)
