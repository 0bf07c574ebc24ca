package labels

import (
	"errors"
	"fmt"
	"strings"
)

// Set pairs a sequence of label names with a sequence of values of the same
// length and caches the rendered `name="value",...` bytes used on every
// exposition line.
type Set struct {
	names    Sequence
	values   Sequence
	rendered []byte
}

// ErrLengthMismatch is returned when names and values differ in length.
var ErrLengthMismatch = errors.New("label names and values differ in length")

// NewSet builds a Set and renders it once.
func NewSet(names, values Sequence) (Set, error) {
	if names.Len() != values.Len() {
		return Set{}, fmt.Errorf("%w: %d names, %d values", ErrLengthMismatch, names.Len(), values.Len())
	}
	return Set{names: names, values: values, rendered: render(names, values)}, nil
}

// MustNewSet is like NewSet but panics on a length mismatch.
func MustNewSet(names, values Sequence) Set {
	s, err := NewSet(names, values)
	if err != nil {
		panic(err)
	}
	return s
}

func render(names, values Sequence) []byte {
	if names.Len() == 0 {
		return nil
	}
	var b []byte
	for i := 0; i < names.Len(); i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, names.At(i)...)
		b = append(b, '=', '"')
		b = AppendEscapedValue(b, values.At(i))
		b = append(b, '"')
	}
	return b
}

// Names returns the label names.
func (s Set) Names() Sequence { return s.names }

// Values returns the label values.
func (s Set) Values() Sequence { return s.values }

// Len returns the number of labels.
func (s Set) Len() int { return s.names.Len() }

// IsEmpty reports whether the set has no labels.
func (s Set) IsEmpty() bool { return s.names.Len() == 0 }

// Prometheus returns the rendering used by the legacy text format. The
// returned slice must not be modified.
func (s Set) Prometheus() []byte { return s.rendered }

// OpenMetrics returns the rendering used by the OpenMetrics text format.
// String label values are escaped identically in both formats, so this is the
// same slice as Prometheus.
func (s Set) OpenMetrics() []byte { return s.rendered }

// Get returns the value of the named label.
func (s Set) Get(name string) (string, bool) {
	for i := 0; i < s.names.Len(); i++ {
		if s.names.At(i) == name {
			return s.values.At(i), true
		}
	}
	return "", false
}

// Concat returns a set holding the labels of s followed by those of other.
func (s Set) Concat(other Set) Set {
	if other.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return other
	}
	return MustNewSet(s.names.Concat(other.names), s.values.Concat(other.values))
}

func (s Set) String() string {
	return "{" + string(s.rendered) + "}"
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

// EscapeValue escapes a label value for both text formats.
func EscapeValue(v string) string {
	return valueEscaper.Replace(v)
}

// AppendEscapedValue appends the escaped form of v to b.
func AppendEscapedValue(b []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '"':
			b = append(b, '\\', '"')
		default:
			b = append(b, c)
		}
	}
	return b
}
