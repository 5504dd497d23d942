// Package idgen provides the identifier sources used by registries and the
// engine.
//
// Identifiers are minted by explicit generator values passed into the
// components that need them. Production code uses SequenceGenerator for
// registry keys and UUIDv7Generator for run ids; tests use FixedGenerator
// or a fresh SequenceGenerator so traces are deterministic.
package idgen

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator mints identifiers. Implementations must be safe for concurrent
// use and must never return the same value twice.
type Generator interface {
	Next() string
}

// SequenceGenerator mints "<prefix>-<n>" strings from a monotonic counter.
//
// The counter starts at 0 and the first value is "<prefix>-1".
type SequenceGenerator struct {
	prefix string
	seq    atomic.Int64
}

// NewSequence creates a sequence generator with the given prefix.
func NewSequence(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewSequenceAt creates a sequence generator that resumes after start.
func NewSequenceAt(prefix string, start int64) *SequenceGenerator {
	g := &SequenceGenerator{prefix: prefix}
	g.seq.Store(start)
	return g
}

// Next returns the next identifier.
func (g *SequenceGenerator) Next() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.seq.Add(1))
}

// Current returns the last issued counter value without advancing.
func (g *SequenceGenerator) Current() int64 {
	return g.seq.Load()
}

// UUIDv7Generator mints time-sortable UUIDv7 strings.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Next returns a hyphenated UUIDv7. It panics if the random source fails.
func (UUIDv7Generator) Next() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers in order.
//
// It panics once every value has been consumed so a test that creates
// more ids than it declared fails loudly.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
func NewFixed(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Next returns the next predetermined id.
func (g *FixedGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("idgen: FixedGenerator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Remaining reports how many ids have not been consumed yet.
func (g *FixedGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids) - g.idx
}
