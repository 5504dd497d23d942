package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// Executor drives one run of a schedule.
type Executor interface {
	execution.Handle

	ScheduleID() ir.ScheduleID
	RunID() string

	// IsLocal reports whether the run executes in this process.
	IsLocal() bool

	// Start begins the run in the background. It fails if called twice.
	Start(ctx context.Context) error
	Cancel()
	Pause()
	Resume()

	// Wait blocks until the run finishes or ctx is done.
	Wait(ctx context.Context) (execution.State, error)
}

// ExecutorFactory creates the executor for a new run of s.
type ExecutorFactory func(d *Distributor, s *schedule.Schedule, info *execution.Info) Executor

// RemoteDispatcher hands runs to executors outside this distributor.
// Dispatch returns an executor that has not been started; the distributor
// registers it in its run table and starts it.
type RemoteDispatcher interface {
	Dispatch(ctx context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info) (Executor, error)
}

// Distributor resolves schedule ids and starts executors for them.
//
// At most one executor runs per schedule id: executing an id that is
// already running returns the running executor, local or remote. The entry
// is removed as soon as the run reaches a terminal state.
type Distributor struct {
	schedules  *schedule.Registry
	actions    *element.ActionRegistry
	conditions *element.ConditionRegistry

	factory     ExecutorFactory
	remote      RemoteDispatcher
	timeline    history.Timeline
	observer    Observer
	logger      *slog.Logger
	runIDs      idgen.Generator
	clock       *Clock
	maxVisits   int
	preferLocal bool

	runs *RunTable
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithFactory replaces the executor factory. The default is NewTraversal.
func WithFactory(f ExecutorFactory) Option {
	return func(d *Distributor) { d.factory = f }
}

// WithRemote enables remote dispatch for runs that do not prefer local
// execution.
func WithRemote(r RemoteDispatcher) Option {
	return func(d *Distributor) { d.remote = r }
}

// WithTimeline sets the timeline history-mark vertices checkpoint into.
func WithTimeline(t history.Timeline) Option {
	return func(d *Distributor) { d.timeline = t }
}

// WithObserver sets the observer notified of every run event.
func WithObserver(o Observer) Option {
	return func(d *Distributor) { d.observer = o }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Distributor) { d.logger = l }
}

// WithRunIDs sets the generator for run ids. The default issues UUIDv7s.
func WithRunIDs(g idgen.Generator) Option {
	return func(d *Distributor) { d.runIDs = g }
}

// WithClock sets the logical clock stamping visits and run events.
func WithClock(c *Clock) Option {
	return func(d *Distributor) { d.clock = c }
}

// WithRunTable sets the table enforcing one run per schedule id. Pass the
// same table to distributors that must share the limit.
func WithRunTable(t *RunTable) Option {
	return func(d *Distributor) { d.runs = t }
}

// WithMaxVisits bounds the vertices a single run may process. Zero means
// unlimited.
func WithMaxVisits(n int) Option {
	return func(d *Distributor) { d.maxVisits = n }
}

// WithPreferLocal sets the preference used by Execute and by sub-schedule
// vertices.
func WithPreferLocal(prefer bool) Option {
	return func(d *Distributor) { d.preferLocal = prefer }
}

// NewDistributor creates a distributor over the given registries.
func NewDistributor(schedules *schedule.Registry, actions *element.ActionRegistry, conditions *element.ConditionRegistry, opts ...Option) *Distributor {
	d := &Distributor{
		schedules:   schedules,
		actions:     actions,
		conditions:  conditions,
		factory:     NewTraversal,
		timeline:    history.NewMemoryTimeline(),
		observer:    NopObserver{},
		logger:      slog.Default(),
		runIDs:      idgen.UUIDv7Generator{},
		clock:       NewClock(),
		preferLocal: true,
		runs:        NewRunTable(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if sharer, ok := d.remote.(RunTableSharer); ok {
		sharer.ShareRunTable(d.runs)
	}
	return d
}

func (d *Distributor) Schedules() *schedule.Registry          { return d.schedules }
func (d *Distributor) Actions() *element.ActionRegistry       { return d.actions }
func (d *Distributor) Conditions() *element.ConditionRegistry { return d.conditions }
func (d *Distributor) Clock() *Clock                          { return d.clock }
func (d *Distributor) Runs() *RunTable                        { return d.runs }

// Execute starts a top-level run of id, or returns the executor already
// running it.
func (d *Distributor) Execute(ctx context.Context, id ir.ScheduleID) (Executor, error) {
	return d.ExecuteWith(ctx, id, nil, nil, d.preferLocal)
}

// ExecuteWith starts a run of id with vars. A non-nil parent makes it a
// sub-schedule run: it inherits nothing but the variables, and canceling
// either run leaves the other untouched.
func (d *Distributor) ExecuteWith(ctx context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info, preferLocal bool) (Executor, error) {
	s, ok := d.schedules.Payload(id)
	if !ok {
		return nil, NewUnknownScheduleError(id)
	}
	if parent != nil && parent.HasAncestor(id) {
		return nil, &RuntimeError{
			Code:     ErrCodeMalformedGraph,
			Message:  "sub-schedule dispatches one of its ancestors",
			Schedule: id,
			RunID:    parent.RunID(),
		}
	}

	remote := d.remote != nil && !preferLocal
	ex, existing, err := d.runs.claim(id, func() (Executor, error) {
		if remote {
			ex, err := d.remote.Dispatch(ctx, id, vars, parent)
			if err != nil {
				return nil, fmt.Errorf("remote dispatch of %s: %w", id, err)
			}
			return ex, nil
		}
		var info *execution.Info
		if parent != nil {
			info = parent.Derive(id, vars)
		} else {
			info = execution.NewInfo(id, vars)
		}
		return d.factory(d, s, info), nil
	})
	if err != nil {
		return nil, err
	}
	if existing {
		return ex, nil
	}

	if err := d.start(ctx, ex, parent != nil); err != nil {
		d.runs.remove(id, ex)
		return nil, err
	}
	d.logger.Debug("executor started", "schedule", id, "run", ex.RunID(), "local", ex.IsLocal())

	go func() {
		<-ex.Done()
		d.runs.remove(id, ex)
	}()
	return ex, nil
}

// RunDetached starts a local run of id that is not entered in the run
// table. It is for a caller that already holds the table entry for id,
// such as a remote proxy executing its run on this distributor.
func (d *Distributor) RunDetached(ctx context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info) (Executor, error) {
	s, ok := d.schedules.Payload(id)
	if !ok {
		return nil, NewUnknownScheduleError(id)
	}
	var info *execution.Info
	if parent != nil {
		info = parent.Derive(id, vars)
	} else {
		info = execution.NewInfo(id, vars)
	}
	ex := d.factory(d, s, info)
	if err := d.start(ctx, ex, parent != nil); err != nil {
		return nil, err
	}
	return ex, nil
}

// start starts ex. Sub-schedule runs outlive the context of the vertex
// that dispatched them.
func (d *Distributor) start(ctx context.Context, ex Executor, sub bool) error {
	if sub {
		ctx = context.WithoutCancel(ctx)
	}
	return ex.Start(ctx)
}

// ExecuteSubSchedule implements processor.Dispatcher.
func (d *Distributor) ExecuteSubSchedule(ctx context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info, preferLocal bool) (execution.Handle, error) {
	ex, err := d.ExecuteWith(ctx, id, vars, parent, preferLocal)
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// Running returns the executor currently running id.
func (d *Distributor) Running(id ir.ScheduleID) (Executor, bool) {
	return d.runs.Get(id)
}

// Cancel cancels the run of id. It reports false if id is not running.
func (d *Distributor) Cancel(id ir.ScheduleID) bool {
	ex, ok := d.Running(id)
	if ok {
		ex.Cancel()
	}
	return ok
}

// CancelAll cancels every running executor in the run table.
func (d *Distributor) CancelAll() {
	for _, ex := range d.runs.snapshot() {
		ex.Cancel()
	}
}

// Wait blocks until no executor is running or ctx is done.
func (d *Distributor) Wait(ctx context.Context) error {
	for {
		ch := d.runs.wait()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
