package execution

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/sequencer/internal/ir"
)

// ErrCanceled is returned by blocking Info methods once the run is canceled.
var ErrCanceled = errors.New("run canceled")

// Info is the mutable state of one run.
//
// A fresh Info is created for every top-level execution and discarded when
// the run ends. Sub-schedule runs get a derived Info: it inherits variables
// and records its parent, but cancellation is independent in both
// directions.
type Info struct {
	schedule ir.ScheduleID
	parent   *Info
	runID    atomic.Value

	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.Mutex
	paused    bool
	resume    chan struct{}
	variables []ir.Variable
	blocks    []*Block
}

// Block is an open synchronization block.
type Block struct {
	// Start is the index of the sync start vertex that opened the block.
	Start     int
	Variables []ir.Variable

	// Runs holds every sub-schedule run dispatched while the block was open,
	// across every entry into it.
	Runs []Handle

	// Entries counts how often the start vertex was processed before the
	// block closed. A loop back to an open start adds an entry.
	Entries int
}

// NewInfo creates the state for a top-level run of schedule id.
func NewInfo(id ir.ScheduleID, vars []ir.Variable) *Info {
	ctx, cancel := context.WithCancel(context.Background())
	return &Info{
		schedule:  id,
		ctx:       ctx,
		cancel:    cancel,
		variables: ir.NewVariableSet(vars...),
	}
}

// Derive creates the state for a sub-schedule run of id dispatched from i.
func (i *Info) Derive(id ir.ScheduleID, vars []ir.Variable) *Info {
	child := NewInfo(id, vars)
	child.parent = i
	return child
}

// ScheduleID returns the schedule this run executes.
func (i *Info) ScheduleID() ir.ScheduleID { return i.schedule }

// Parent returns the run that dispatched this one, or nil.
func (i *Info) Parent() *Info { return i.parent }

// RunID returns the id assigned to this run, or "" before assignment.
func (i *Info) RunID() string {
	id, _ := i.runID.Load().(string)
	return id
}

// AssignRunID records the id of the executor driving this run.
func (i *Info) AssignRunID(id string) { i.runID.Store(id) }

// HasAncestor reports whether id is executed by this run or any run that
// (transitively) dispatched it.
func (i *Info) HasAncestor(id ir.ScheduleID) bool {
	for cur := i; cur != nil; cur = cur.parent {
		if cur.schedule == id {
			return true
		}
	}
	return false
}

// Cancel requests cooperative cancellation. It is idempotent.
func (i *Info) Cancel() {
	if i.cancelled.CompareAndSwap(false, true) {
		i.cancel()
	}
}

// IsCancelled reports whether Cancel has been called.
func (i *Info) IsCancelled() bool { return i.cancelled.Load() }

// Cancelled is closed once Cancel has been called.
func (i *Info) Cancelled() <-chan struct{} { return i.ctx.Done() }

// Bind derives a context for running this run's vertices. The returned
// context is done when parent is done or the run is canceled; parent
// becoming done also cancels the run. Call release when the run ends.
func (i *Info) Bind(parent context.Context) (ctx context.Context, release context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stopParent := context.AfterFunc(parent, i.Cancel)
	stopRun := context.AfterFunc(i.ctx, cancel)
	return ctx, func() {
		stopParent()
		stopRun()
		cancel()
	}
}

// Pause makes WaitIfPaused block until Resume.
func (i *Info) Pause() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.paused {
		i.paused = true
		i.resume = make(chan struct{})
	}
}

// Resume releases a paused run.
func (i *Info) Resume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.paused {
		i.paused = false
		close(i.resume)
	}
}

// IsPaused reports whether the run is paused.
func (i *Info) IsPaused() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paused
}

// WaitIfPaused blocks while the run is paused. It returns ErrCanceled if
// the run is canceled and ctx.Err() if ctx ends first.
func (i *Info) WaitIfPaused(ctx context.Context) error {
	for {
		i.mu.Lock()
		if !i.paused {
			i.mu.Unlock()
			return nil
		}
		ch := i.resume
		i.mu.Unlock()

		select {
		case <-ch:
		case <-i.ctx.Done():
			return ErrCanceled
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Variables returns the run's variables together with those guarded by
// every open block.
func (i *Info) Variables() []ir.Variable {
	i.mu.Lock()
	defer i.mu.Unlock()

	vars := slices.Clone(i.variables)
	for _, b := range i.blocks {
		vars = append(vars, b.Variables...)
	}
	return ir.NewVariableSet(vars...)
}

// OpenBlock pushes a synchronization block opened by the vertex at start.
// Re-entering a start whose block is still open adds an entry to that
// block and keeps the runs it already tracks, so the matching end waits
// for every path that entered it.
func (i *Info) OpenBlock(start int, vars []ir.Variable) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, b := range i.blocks {
		if b.Start == start {
			b.Entries++
			b.Variables = ir.NewVariableSet(append(b.Variables, vars...)...)
			return
		}
	}
	i.blocks = append(i.blocks, &Block{Start: start, Variables: ir.NewVariableSet(vars...), Entries: 1})
}

// Track records h in every open block.
func (i *Info) Track(h Handle) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, b := range i.blocks {
		b.Runs = append(b.Runs, h)
	}
}

// CloseBlock pops the block opened at start together with any block
// opened after it. It reports false if no such block is open.
func (i *Info) CloseBlock(start int) (*Block, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for n := len(i.blocks) - 1; n >= 0; n-- {
		if i.blocks[n].Start == start {
			b := i.blocks[n]
			i.blocks = i.blocks[:n]
			return b, true
		}
	}
	return nil, false
}

// OpenBlocks returns the number of open synchronization blocks.
func (i *Info) OpenBlocks() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.blocks)
}
