// Package remote runs dispatched schedules on a bounded worker pool,
// standing in for an out-of-process executor.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// PoolDispatcher implements engine.RemoteDispatcher. Runs are executed by a
// private distributor; at most workers of them are in flight, the rest
// wait for a slot.
//
// A dispatched run is entered in the calling distributor's run table by
// its proxy, so the pool executes it outside any table. Sub-schedules it
// dispatches go through the pool distributor's table, which is the
// caller's once ShareRunTable has been called.
type PoolDispatcher struct {
	dist   *engine.Distributor
	slots  *semaphore.Weighted
	ids    idgen.Generator
	logger *slog.Logger

	schedules  *schedule.Registry
	actions    *element.ActionRegistry
	conditions *element.ConditionRegistry
	opts       []engine.Option

	mu     sync.Mutex
	active map[*proxy]struct{}
	wg     sync.WaitGroup
}

var (
	_ engine.RemoteDispatcher = (*PoolDispatcher)(nil)
	_ engine.RunTableSharer   = (*PoolDispatcher)(nil)
)

// NewPoolDispatcher creates a pool of the given size over the registries.
// opts configure the pool's distributor; remote dispatch inside the pool is
// always local.
func NewPoolDispatcher(workers int, schedules *schedule.Registry, actions *element.ActionRegistry, conditions *element.ConditionRegistry, opts ...engine.Option) *PoolDispatcher {
	if workers < 1 {
		workers = 1
	}
	opts = append(opts, engine.WithPreferLocal(true), engine.WithRemote(nil))
	p := &PoolDispatcher{
		slots:      semaphore.NewWeighted(int64(workers)),
		ids:        idgen.NewSequence("remote"),
		logger:     slog.Default(),
		schedules:  schedules,
		actions:    actions,
		conditions: conditions,
		opts:       opts,
		active:     make(map[*proxy]struct{}),
	}
	p.dist = engine.NewDistributor(schedules, actions, conditions, opts...)
	return p
}

// ShareRunTable makes the pool's distributor use t, so sub-schedules of
// pool runs count against the caller's one-run-per-id limit. It must be
// called before the first Dispatch; NewDistributor does so for its remote.
func (p *PoolDispatcher) ShareRunTable(t *engine.RunTable) {
	opts := append(append([]engine.Option(nil), p.opts...), engine.WithRunTable(t))
	p.dist = engine.NewDistributor(p.schedules, p.actions, p.conditions, opts...)
}

// WithLogger sets the pool's logger and returns p.
func (p *PoolDispatcher) WithLogger(l *slog.Logger) *PoolDispatcher {
	p.logger = l
	return p
}

// Distributor returns the distributor the pool executes runs on.
func (p *PoolDispatcher) Distributor() *engine.Distributor { return p.dist }

// Dispatch returns a proxy for a run of id. The run is queued for a slot
// once the proxy is started.
func (p *PoolDispatcher) Dispatch(_ context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info) (engine.Executor, error) {
	if _, ok := p.schedules.Payload(id); !ok {
		return nil, engine.NewUnknownScheduleError(id)
	}
	return &proxy{
		pool:   p,
		id:     id,
		runID:  p.ids.Next(),
		vars:   vars,
		parent: parent,
		state:  execution.StateIdle,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Close waits for every dispatched run to finish or ctx to end.
func (p *PoolDispatcher) Close(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		for px := range p.active {
			px.Cancel()
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// proxy is the IsLocal=false executor handed back to the caller. It waits
// for a pool slot and then follows the executor running on the pool.
type proxy struct {
	pool   *PoolDispatcher
	id     ir.ScheduleID
	runID  string
	vars   []ir.Variable
	parent *execution.Info

	mu       sync.Mutex
	started  bool
	paused   bool
	inner    engine.Executor
	state    execution.State
	err      error
	canceled bool
	cancel   chan struct{}
	done     chan struct{}
}

func (x *proxy) ScheduleID() ir.ScheduleID { return x.id }
func (x *proxy) RunID() string             { return x.runID }
func (x *proxy) IsLocal() bool             { return false }
func (x *proxy) Done() <-chan struct{}     { return x.done }

func (x *proxy) State() execution.State {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.inner != nil && !execution.IsTerminal(x.state) {
		return x.inner.State()
	}
	return x.state
}

func (x *proxy) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

func (x *proxy) Start(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started {
		return &engine.RuntimeError{
			Code:     engine.ErrCodeAlreadyStarted,
			Message:  "remote executor already started",
			Schedule: x.id,
			RunID:    x.runID,
		}
	}
	x.started = true
	x.pool.wg.Add(1)
	x.pool.mu.Lock()
	x.pool.active[x] = struct{}{}
	x.pool.mu.Unlock()
	go x.run(context.WithoutCancel(ctx))
	return nil
}

func (x *proxy) run(ctx context.Context) {
	defer x.pool.wg.Done()
	defer func() {
		x.pool.mu.Lock()
		delete(x.pool.active, x)
		x.pool.mu.Unlock()
	}()

	acquire, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-x.cancel:
			stop()
		case <-acquire.Done():
		}
	}()

	if err := x.pool.slots.Acquire(acquire, 1); err != nil {
		x.finish(execution.StateCanceled, nil)
		return
	}
	defer x.pool.slots.Release(1)

	// Acquire may still succeed after cancellation.
	if x.isCanceled() {
		x.finish(execution.StateCanceled, nil)
		return
	}

	inner, err := x.pool.dist.RunDetached(ctx, x.id, x.vars, x.parent)
	if err != nil {
		x.finish(execution.StateFailed, fmt.Errorf("remote run %s: %w", x.runID, err))
		return
	}
	x.attach(inner)
	x.pool.logger.Debug("remote run attached", "run", x.runID, "worker_run", inner.RunID(), "schedule", x.id)

	<-inner.Done()
	x.finish(inner.State(), inner.Err())
}

func (x *proxy) attach(inner engine.Executor) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.inner = inner
	x.state = execution.StateExecuting
	if x.canceled {
		inner.Cancel()
	}
	if x.paused {
		inner.Pause()
	}
}

func (x *proxy) finish(st execution.State, err error) {
	x.mu.Lock()
	x.state, x.err = st, err
	x.mu.Unlock()
	close(x.done)
}

func (x *proxy) Cancel() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.canceled {
		return
	}
	x.canceled = true
	close(x.cancel)
	if x.inner != nil {
		x.inner.Cancel()
	}
}

func (x *proxy) isCanceled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.canceled
}

func (x *proxy) Pause() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.paused = true
	if x.inner != nil {
		x.inner.Pause()
	}
}

func (x *proxy) Resume() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.paused = false
	if x.inner != nil {
		x.inner.Resume()
	}
}

func (x *proxy) Wait(ctx context.Context) (execution.State, error) {
	select {
	case <-x.done:
		return x.State(), x.Err()
	case <-ctx.Done():
		return x.State(), ctx.Err()
	}
}
