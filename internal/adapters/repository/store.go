// Package repository holds the per-run measurement store.
package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

// Store collects the retained measurements of one run.
type Store interface {
	// Append keeps m if it passes the retention filter. It reports whether
	// m was kept and returns ErrFrozen once the store is frozen.
	Append(ctx context.Context, m model.TurnMeasurement) (bool, error)
	// Freeze stops accepting measurements and returns the final snapshot.
	// Calling it again returns the same snapshot.
	Freeze(ctx context.Context) *Snapshot
	// Snapshot returns the frozen snapshot, or ErrNotFrozen.
	Snapshot() (*Snapshot, error)
	// Len returns the number of retained measurements.
	Len() int
}

// Snapshot is the immutable content of a frozen store.
type Snapshot struct {
	Measurements []model.TurnMeasurement
	Discarded    int
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu        sync.Mutex
	items     []model.TurnMeasurement
	discarded int
	capacity  int
	log       logger.Logger

	snapshot atomic.Pointer[Snapshot]
}

// NewMemoryStore constructs an empty store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("store")
	}
	s.items = make([]model.TurnMeasurement, 0, s.capacity)
	return s
}

// Append implements Store.Append.
func (s *MemoryStore) Append(ctx context.Context, m model.TurnMeasurement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot.Load() != nil {
		return false, ErrFrozen
	}
	if !m.Retainable() {
		s.discarded++
		s.log.Debug(ctx, "measurement discarded",
			logger.String("recording_id", m.RecordingID),
			logger.Int("rtt_ms", m.RTTMS),
			logger.Float64("confidence", m.Confidence))
		return false, nil
	}
	s.items = append(s.items, m)
	return true, nil
}

// Freeze implements Store.Freeze.
func (s *MemoryStore) Freeze(ctx context.Context) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	items := make([]model.TurnMeasurement, len(s.items))
	copy(items, s.items)
	snap := &Snapshot{Measurements: items, Discarded: s.discarded}
	s.snapshot.Store(snap)

	s.log.Debug(ctx, "store frozen",
		logger.Int("retained", len(items)),
		logger.Int("discarded", s.discarded))
	return snap
}

// Snapshot implements Store.Snapshot.
func (s *MemoryStore) Snapshot() (*Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, ErrNotFrozen
	}
	return snap, nil
}

// Len implements Store.Len.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
