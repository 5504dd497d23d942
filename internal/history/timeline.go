// Package history bridges history-mark vertices to a timeline facility.
//
// The engine only needs the narrow Timeline contract: ask for a checkpoint
// and get an opaque marker back. MemoryTimeline serves tests and one-off
// runs; the store package provides a SQLite-backed implementation.
package history

import (
	"context"
	"fmt"
	"sync"
)

// TimeMarker is an opaque handle to a timeline checkpoint.
type TimeMarker struct {
	// ID is unique within the timeline that issued it.
	ID string `json:"id"`

	// Seq is the checkpoint's position in the timeline.
	Seq int64 `json:"seq"`
}

// Timeline issues checkpoints.
type Timeline interface {
	Mark(ctx context.Context) (TimeMarker, error)
}

// TimelineFunc adapts a function to Timeline.
type TimelineFunc func(ctx context.Context) (TimeMarker, error)

// Mark calls f(ctx).
func (f TimelineFunc) Mark(ctx context.Context) (TimeMarker, error) { return f(ctx) }

// MemoryTimeline numbers checkpoints in memory.
type MemoryTimeline struct {
	mu      sync.Mutex
	seq     int64
	markers []TimeMarker
}

// NewMemoryTimeline creates an empty in-memory timeline.
func NewMemoryTimeline() *MemoryTimeline {
	return &MemoryTimeline{}
}

// Mark records and returns the next checkpoint.
func (m *MemoryTimeline) Mark(ctx context.Context) (TimeMarker, error) {
	if err := ctx.Err(); err != nil {
		return TimeMarker{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	marker := TimeMarker{ID: fmt.Sprintf("mark-%d", m.seq), Seq: m.seq}
	m.markers = append(m.markers, marker)
	return marker, nil
}

// Markers returns every checkpoint issued so far, in order.
func (m *MemoryTimeline) Markers() []TimeMarker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TimeMarker(nil), m.markers...)
}
