package metrics

import (
	"context"
	"log/slog"

	dto "github.com/prometheus/client_model/go"
	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"

	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// child is implemented by every metric child type.
type child interface {
	base() *childBase
	// collect writes the samples of the child.
	collect(ctx context.Context, s exposition.Serializer, name string) error
	// write fills the type-specific part of m.
	write(m *dto.Metric)
}

// childEnv is shared by all children of one collector.
type childEnv struct {
	clock  Clock
	logger *slog.Logger
	metric string
}

// childRemover owns a set of children.
type childRemover interface {
	removeChild(b *childBase) bool
}

// childBase is embedded in every child type. It carries the label values,
// the pre-rendered flattened labels and the publish flag.
type childBase struct {
	env       *childEnv
	owner     childRemover
	values    labels.Sequence
	flattened labels.Set
	seq       uint64
	published atomic.Bool
}

func (b *childBase) base() *childBase { return b }

// markWritten publishes the child on its first write.
func (b *childBase) markWritten() {
	if !b.published.Load() {
		b.published.Store(true)
	}
}

// Publish makes the child visible in the output even if it was never
// written to.
func (b *childBase) Publish() { b.published.Store(true) }

// Unpublish hides the child from the output until its next write or Publish.
func (b *childBase) Unpublish() { b.published.Store(false) }

// IsPublished reports whether the child is currently part of the output.
func (b *childBase) IsPublished() bool { return b.published.Load() }

// Remove detaches the child from its metric. The next lookup with the same
// label values creates a new child. Writes through the removed child are
// no longer reported.
func (b *childBase) Remove() {
	if b.owner != nil {
		b.owner.removeChild(b)
	}
}

// LabelValues returns the instance label values of the child.
func (b *childBase) LabelValues() []string { return b.values.Values() }

// labelPairs returns the flattened labels as sorted dto pairs.
func (b *childBase) labelPairs() []*dto.LabelPair {
	names, values := b.flattened.Names(), b.flattened.Values()
	pairs := make([]*dto.LabelPair, names.Len())
	for i := range pairs {
		pairs[i] = &dto.LabelPair{Name: proto.String(names.At(i)), Value: proto.String(values.At(i))}
	}
	sortLabelPairs(pairs)
	return pairs
}
