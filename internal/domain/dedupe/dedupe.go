// Package dedupe tracks in-flight insight jobs so the same (track, milestone)
// key is not dispatched twice concurrently. This is an optimization, not a
// correctness guarantee: the persisted claim in the repository is what keeps
// terminal writes unique. Keys are released once a job reaches a terminal
// state, so a failed milestone stays retryable through backfill.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records in-flight job keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key is in flight and records it if
	// not. Returns true if key was already in flight, false if it was newly
	// recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases a key once its job reached a terminal state.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inFlightSet implements Deduper with a mutex-guarded set.
type inFlightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
	size atomic.Int64
}

// NewInFlightSet creates an empty deduper.
func NewInFlightSet() Deduper {
	return &inFlightSet{keys: make(map[string]struct{})}
}

func (d *inFlightSet) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.keys[key]; exists {
		return true
	}
	d.keys[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inFlightSet) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.keys[key]; exists {
		delete(d.keys, key)
		d.size.Add(-1)
	}
}

func (d *inFlightSet) Size() int64 {
	return d.size.Load()
}
