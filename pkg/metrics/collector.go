package metrics

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"

	"lease-metrics/pkg/metrics/labels"
)

// identity distinguishes collectors within one family. Label name order is
// significant.
type identity struct {
	labelNames   labels.Sequence
	staticNames  labels.Sequence
	staticValues labels.Sequence
}

func (id identity) hash() uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], id.labelNames.Hash())
	binary.LittleEndian.PutUint64(buf[8:], id.staticNames.Hash())
	binary.LittleEndian.PutUint64(buf[16:], id.staticValues.Hash())
	return xxhash.Sum64(buf[:])
}

func (id identity) equal(other identity) bool {
	return id.labelNames.Equal(other.labelNames) &&
		id.staticNames.Equal(other.staticNames) &&
		id.staticValues.Equal(other.staticValues)
}

// familyCollector is the type-erased view of a collector used by its family
// and by the collection pipeline.
type familyCollector interface {
	identity() identity
	// shape describes type-specific layout (buckets, objectives) that must
	// match when the same identity is registered again.
	shape() string
	// publishedChildren returns a snapshot of the published children in
	// creation order.
	publishedChildren() []child
}

// collector holds the children of one metric identity, keyed by label values.
//
// Lookups take the read lock; a miss takes the write lock and checks again
// before creating, so at most one child exists per label-value combination.
type collector[C child] struct {
	id              identity
	layout          string
	labelNames      labels.Sequence
	static          labels.Set
	publishOnCreate bool
	env             *childEnv
	newChild        func() C

	seq atomic.Uint64

	mu       sync.RWMutex
	children map[uint64][]C

	// lifetime is the leasing engine bound to this collector, if any.
	lifetimeMu sync.Mutex
	lifetime   any
}

func newCollector[C child](id identity, layout string, static labels.Set, cfg MetricConfig, env *childEnv, newChild func() C) *collector[C] {
	return &collector[C]{
		id:              id,
		layout:          layout,
		labelNames:      id.labelNames,
		static:          static,
		publishOnCreate: cfg.PublishOnCreate,
		env:             env,
		newChild:        newChild,
		children:        make(map[uint64][]C),
	}
}

func (c *collector[C]) identity() identity { return c.id }

func (c *collector[C]) shape() string { return c.layout }

// WithLabels returns the child for the given label values, creating it on
// first use. It panics if the number of values does not match the label
// names or a value is not valid UTF-8.
func (c *collector[C]) WithLabels(values ...string) C {
	ch, err := c.GetWithLabels(values...)
	if err != nil {
		panic(err)
	}
	return ch
}

// GetWithLabels is like WithLabels but returns an error instead of panicking.
func (c *collector[C]) GetWithLabels(values ...string) (C, error) {
	return c.get(values)
}

// Unlabelled returns the child of a metric without instance labels.
func (c *collector[C]) Unlabelled() C {
	return c.WithLabels()
}

// RemoveLabelled removes the child with the given label values. It reports
// whether a child was removed.
func (c *collector[C]) RemoveLabelled(values ...string) bool {
	h := labels.HashValues(values)
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.children[h]
	for i, ch := range bucket {
		if ch.base().values.EqualValues(values) {
			c.deleteLocked(h, i)
			return true
		}
	}
	return false
}

// Clear removes every child.
func (c *collector[C]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = make(map[uint64][]C)
}

// LabelValues returns the label values of every child in creation order.
func (c *collector[C]) LabelValues() [][]string {
	children := c.snapshot()
	out := make([][]string, len(children))
	for i, ch := range children {
		out[i] = ch.base().LabelValues()
	}
	return out
}

// LabelNames returns the instance label names.
func (c *collector[C]) LabelNames() []string { return c.labelNames.Values() }

func (c *collector[C]) checkValues(values []string) error {
	if len(values) != c.labelNames.Len() {
		return fmt.Errorf("%w: %s has label names %s, got %d values", ErrInvalidLabels,
			c.env.metric, c.labelNames, len(values))
	}
	for _, v := range values {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: label value %q is not valid UTF-8", ErrInvalidLabels, v)
		}
	}
	return nil
}

func (c *collector[C]) get(values []string) (C, error) {
	if err := c.checkValues(values); err != nil {
		var zero C
		return zero, err
	}

	h := labels.HashValues(values)
	c.mu.RLock()
	ch, ok := c.lookupLocked(h, values)
	c.mu.RUnlock()
	if ok {
		return ch, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.lookupLocked(h, values); ok {
		return ch, nil
	}
	return c.createLocked(h, values), nil
}

func (c *collector[C]) lookupLocked(h uint64, values []string) (C, bool) {
	for _, ch := range c.children[h] {
		if ch.base().values.EqualValues(values) {
			return ch, true
		}
	}
	var zero C
	return zero, false
}

func (c *collector[C]) createLocked(h uint64, values []string) C {
	seq := labels.New(values...)
	ch := c.newChild()
	b := ch.base()
	b.env = c.env
	b.owner = c
	b.values = seq
	b.flattened = labels.MustNewSet(c.labelNames, seq).Concat(c.static)
	b.seq = c.seq.Inc()
	if c.publishOnCreate {
		b.published.Store(true)
	}
	c.children[h] = append(c.children[h], ch)

	c.env.logger.Debug("metric child created",
		slog.String("metric", c.env.metric),
		slog.Any("labels", values))
	return ch
}

// removeChild removes b if it is still the registered child for its label
// values.
// holds reports whether b is still registered in the collector.
func (c *collector[C]) holds(b *childBase) bool {
	h := b.values.Hash()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.children[h] {
		if ch.base() == b {
			return true
		}
	}
	return false
}

func (c *collector[C]) removeChild(b *childBase) bool {
	h := b.values.Hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.children[h] {
		if ch.base() == b {
			c.deleteLocked(h, i)
			return true
		}
	}
	return false
}

func (c *collector[C]) deleteLocked(h uint64, i int) {
	bucket := slices.Delete(c.children[h], i, i+1)
	if len(bucket) == 0 {
		delete(c.children, h)
		return
	}
	c.children[h] = bucket
}

// snapshot copies the children under the read lock, sorted by creation.
func (c *collector[C]) snapshot() []C {
	c.mu.RLock()
	out := make([]C, 0, len(c.children))
	for _, bucket := range c.children {
		out = append(out, bucket...)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b C) int {
		return cmp.Compare(a.base().seq, b.base().seq)
	})
	return out
}

func (c *collector[C]) publishedChildren() []child {
	all := c.snapshot()
	out := make([]child, 0, len(all))
	for _, ch := range all {
		if ch.base().IsPublished() {
			out = append(out, ch)
		}
	}
	return out
}
