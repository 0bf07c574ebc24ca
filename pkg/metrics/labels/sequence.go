// Package labels provides the canonical, immutable label representations used
// as map keys by the metric registry and pre-rendered for exposition.
package labels

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// separator never appears in valid UTF-8 and keeps ("ab","c") and ("a","bc")
// from hashing to the same value.
const separator = 0xff

var emptyHash = xxhash.Sum64(nil)

// Empty is the zero-length sequence.
var Empty = Sequence{hash: emptyHash}

// Sequence is an ordered, immutable list of strings with a precomputed hash.
//
// Two sequences are equal if and only if they have the same length and the
// same strings in the same order. Hash and equality are order-sensitive:
// ("a","b") and ("b","a") are different sequences.
//
// A Sequence is safe to share between goroutines.
type Sequence struct {
	values []string
	hash   uint64
}

// New returns a sequence holding a copy of values.
func New(values ...string) Sequence {
	if len(values) == 0 {
		return Empty
	}
	own := make([]string, len(values))
	copy(own, values)
	return Sequence{values: own, hash: hashOf(own)}
}

func hashOf(values []string) uint64 {
	d := xxhash.New()
	for _, v := range values {
		_, _ = d.WriteString(v)
		_, _ = d.Write([]byte{separator})
	}
	return d.Sum64()
}

// Len returns the number of strings in the sequence.
func (s Sequence) Len() int { return len(s.values) }

// At returns the i-th string.
func (s Sequence) At(i int) string { return s.values[i] }

// Hash returns the precomputed hash of the sequence.
func (s Sequence) Hash() uint64 {
	if s.values == nil && s.hash == 0 {
		return emptyHash
	}
	return s.hash
}

// Values returns a copy of the strings in the sequence.
func (s Sequence) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Equal reports whether s and other hold the same strings in the same order.
func (s Sequence) Equal(other Sequence) bool {
	if len(s.values) != len(other.values) || s.Hash() != other.Hash() {
		return false
	}
	for i := range s.values {
		if s.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

// EqualValues reports whether the sequence matches the given strings in order
// without allocating a Sequence for them.
func (s Sequence) EqualValues(values []string) bool {
	if len(s.values) != len(values) {
		return false
	}
	for i := range values {
		if s.values[i] != values[i] {
			return false
		}
	}
	return true
}

// Contains reports whether v is one of the strings in the sequence.
func (s Sequence) Contains(v string) bool {
	for _, x := range s.values {
		if x == v {
			return true
		}
	}
	return false
}

// Concat returns a new sequence holding the strings of s followed by those of
// other.
func (s Sequence) Concat(other Sequence) Sequence {
	switch {
	case other.Len() == 0:
		return s
	case s.Len() == 0:
		return other
	}
	joined := make([]string, 0, len(s.values)+len(other.values))
	joined = append(joined, s.values...)
	joined = append(joined, other.values...)
	return Sequence{values: joined, hash: hashOf(joined)}
}

func (s Sequence) String() string {
	return "[" + strings.Join(s.values, ",") + "]"
}

// HashValues computes the hash a Sequence built from values would have. It
// lets lookups probe a hash-keyed map before deciding to allocate.
func HashValues(values []string) uint64 {
	if len(values) == 0 {
		return emptyHash
	}
	return hashOf(values)
}
