// Package logbuffer provides the append-only execution log aggregator with
// level filtering and id-based deduplication.
package logbuffer

import (
	"sort"
	"sync"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// DefaultCapacity bounds retained entries. The reference behavior kept logs
// unbounded; the cap is a deliberate hardening deviation, with FIFO eviction
// of the oldest entries once exceeded.
const DefaultCapacity = 5000

// Buffer is an append-only store of execution log entries. Both delivery
// channels may deliver the same entry during a handover, so Append
// deduplicates by entry id; evicted ids stay in the seen set so a polling
// replay cannot resurrect them.
type Buffer struct {
	mu       sync.RWMutex
	entries  []*models.LogEntry
	seen     map[string]struct{}
	capacity int
}

// New creates a buffer with the given capacity. Non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{
		seen:     make(map[string]struct{}),
		capacity: capacity,
	}
}

// Append adds entries not seen before and returns how many were accepted.
// Nil entries and entries without an id are dropped.
func (b *Buffer) Append(entries ...*models.LogEntry) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	accepted := 0

	for _, entry := range entries {
		if entry == nil || entry.ID == "" {
			continue
		}

		if _, dup := b.seen[entry.ID]; dup {
			continue
		}

		b.seen[entry.ID] = struct{}{}
		b.entries = append(b.entries, entry)
		accepted++
	}

	if overflow := len(b.entries) - b.capacity; overflow > 0 {
		b.entries = append([]*models.LogEntry(nil), b.entries[overflow:]...)
	}

	return accepted
}

// All returns the retained entries ordered by timestamp. Arrival order is not
// trusted: the two channels may deliver out of order, so the projection sorts
// (stably) on read.
func (b *Buffer) All() []*models.LogEntry {
	return b.Filter("")
}

// Filter returns retained entries at the given level, ordered by timestamp.
// An empty level returns everything. The projection is non-destructive.
func (b *Buffer) Filter(level models.LogLevel) []*models.LogEntry {
	b.mu.RLock()

	out := make([]*models.LogEntry, 0, len(b.entries))

	for _, entry := range b.entries {
		if level == "" || entry.Level == level {
			out = append(out, entry)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Len returns the number of retained entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries)
}

// Clear drops all retained entries and the dedupe set.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = nil
	b.seen = make(map[string]struct{})
}
