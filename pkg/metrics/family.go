package metrics

import (
	"fmt"
	"sync"

	"lease-metrics/pkg/metrics/exposition"
)

// family groups the collectors sharing one metric name. Name, help and type
// are fixed by the first registration.
type family struct {
	name string
	help string
	typ  exposition.MetricType

	mu         sync.RWMutex
	collectors map[uint64][]familyCollector
	order      []familyCollector
}

func newFamily(name, help string, typ exposition.MetricType) *family {
	return &family{
		name:       name,
		help:       help,
		typ:        typ,
		collectors: make(map[uint64][]familyCollector),
	}
}

// getOrAdd returns the collector registered under id, calling create on the
// first registration.
func (f *family) getOrAdd(id identity, layout string, create func() familyCollector) (familyCollector, error) {
	h := id.hash()

	f.mu.RLock()
	col := f.lookupLocked(h, id)
	f.mu.RUnlock()

	if col == nil {
		f.mu.Lock()
		col = f.lookupLocked(h, id)
		if col == nil {
			col = create()
			f.collectors[h] = append(f.collectors[h], col)
			f.order = append(f.order, col)
			f.mu.Unlock()
			return col, nil
		}
		f.mu.Unlock()
	}

	if col.shape() != layout {
		return nil, fmt.Errorf("%w: %s is already registered with %s, requested %s",
			ErrMetadataConflict, f.name, col.shape(), layout)
	}
	return col, nil
}

func (f *family) lookupLocked(h uint64, id identity) familyCollector {
	for _, col := range f.collectors[h] {
		if col.identity().equal(id) {
			return col
		}
	}
	return nil
}

// snapshot returns the collectors in registration order.
func (f *family) snapshot() []familyCollector {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]familyCollector, len(f.order))
	copy(out, f.order)
	return out
}

// publishedChildren returns the published children of every collector.
func (f *family) publishedChildren() []child {
	var out []child
	for _, col := range f.snapshot() {
		out = append(out, col.publishedChildren()...)
	}
	return out
}
