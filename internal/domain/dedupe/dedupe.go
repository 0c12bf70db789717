// Package dedupe tracks recording IDs already seen within a run.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/turnlat/internal/domain/model"
)

// Deduper records seen recording IDs so each recording is analyzed at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Size returns the number of IDs currently tracked.
	Size() int
}

// inMemoryDeduper keeps IDs in a map. In bounded mode the oldest ID is
// evicted once maxSize is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int        // 0 or negative = unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper.SeenAndRecord.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

// Size returns the number of IDs currently tracked.
func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Unique filters recordings whose ID was already seen by d, keeping listing
// order. It returns the unique recordings and how many were dropped.
func Unique(ctx context.Context, d Deduper, recs []model.Recording) ([]model.Recording, int) {
	out := make([]model.Recording, 0, len(recs))
	dups := 0
	for _, r := range recs {
		if d.SeenAndRecord(ctx, r.ID) {
			dups++
			continue
		}
		out = append(out, r)
	}
	return out, dups
}
