package engine

import (
	"sync"

	"github.com/roach88/sequencer/internal/ir"
)

// RunTable holds the executor running each schedule id. Distributors that
// share a table share its one-run-per-id limit, whichever of them started
// the run and whether it runs locally or remotely.
type RunTable struct {
	mu      sync.Mutex
	running map[ir.ScheduleID]Executor
	changed chan struct{}
}

// NewRunTable creates an empty table.
func NewRunTable() *RunTable {
	return &RunTable{
		running: make(map[ir.ScheduleID]Executor),
		changed: make(chan struct{}),
	}
}

// RunTableSharer is implemented by remote dispatchers that execute runs on
// distributors of their own. NewDistributor hands them its table.
type RunTableSharer interface {
	ShareRunTable(t *RunTable)
}

// claim returns the live executor for id, or registers the one create
// builds. The check and the insert happen under one lock.
func (t *RunTable) claim(id ir.ScheduleID, create func() (Executor, error)) (ex Executor, existing bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.running[id]; ok {
		select {
		case <-cur.Done():
			// Finished but not yet removed by its watcher.
			delete(t.running, id)
		default:
			return cur, true, nil
		}
	}
	ex, err = create()
	if err != nil {
		return nil, false, err
	}
	t.running[id] = ex
	return ex, false, nil
}

// Get returns the executor currently running id.
func (t *RunTable) Get(id ir.ScheduleID) (Executor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.running[id]
	return ex, ok
}

// Len reports how many ids have a running executor.
func (t *RunTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

func (t *RunTable) snapshot() []Executor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Executor, 0, len(t.running))
	for _, ex := range t.running {
		out = append(out, ex)
	}
	return out
}

// remove drops ex if it is still the entry for id.
func (t *RunTable) remove(id ir.ScheduleID, ex Executor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.running[id]; ok && cur == ex {
		delete(t.running, id)
		close(t.changed)
		t.changed = make(chan struct{})
	}
}

// wait returns a channel closed at the next removal, or nil when the table
// is empty.
func (t *RunTable) wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.running) == 0 {
		return nil
	}
	return t.changed
}
