package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/processor"
	"github.com/roach88/sequencer/internal/schedule"
)

// Traversal is the local executor. It walks the schedule from its start
// vertex, processing one vertex at a time on its own goroutine and
// following the first eligible outgoing edge after every non-terminal
// verdict.
type Traversal struct {
	d     *Distributor
	sched *schedule.Schedule
	info  *execution.Info
	name  string
	runID string

	visits atomic.Int64

	mu      sync.Mutex
	started bool
	state   execution.State
	err     error
	done    chan struct{}
}

var _ Executor = (*Traversal)(nil)

// NewTraversal is the default ExecutorFactory.
func NewTraversal(d *Distributor, s *schedule.Schedule, info *execution.Info) Executor {
	t := &Traversal{
		d:     d,
		sched: s,
		info:  info,
		runID: d.runIDs.Next(),
		state: execution.StateIdle,
		done:  make(chan struct{}),
	}
	if meta, ok := d.schedules.Information(info.ScheduleID()); ok {
		t.name = meta.Name
	}
	info.AssignRunID(t.runID)
	return t
}

func (t *Traversal) ScheduleID() ir.ScheduleID { return t.info.ScheduleID() }
func (t *Traversal) RunID() string             { return t.runID }
func (t *Traversal) IsLocal() bool             { return true }
func (t *Traversal) Done() <-chan struct{}     { return t.done }
func (t *Traversal) Cancel()                   { t.info.Cancel() }
func (t *Traversal) Pause()                    { t.info.Pause() }
func (t *Traversal) Resume()                   { t.info.Resume() }

// Info returns the run state shared with the processors.
func (t *Traversal) Info() *execution.Info { return t.info }

// Visits returns the number of vertices processed so far.
func (t *Traversal) Visits() int { return int(t.visits.Load()) }

func (t *Traversal) State() execution.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Traversal) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Traversal) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return &RuntimeError{
			Code:     ErrCodeAlreadyStarted,
			Message:  "executor already started",
			Schedule: t.info.ScheduleID(),
			RunID:    t.runID,
		}
	}
	t.started = true
	go t.run(ctx)
	return nil
}

func (t *Traversal) Wait(ctx context.Context) (execution.State, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.state, t.err
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

func (t *Traversal) run(ctx context.Context) {
	ctx, release := t.info.Bind(ctx)
	defer release()

	t.setState(execution.StateExecuting, nil)
	t.d.observer.RunStarted(t.runInfo())

	state, err := t.traverse(ctx)
	t.setState(state, err)
	t.d.observer.RunFinished(t.runInfo())
	close(t.done)
}

func (t *Traversal) traverse(ctx context.Context) (execution.State, error) {
	procs := processor.NewSet(processor.Deps{
		Actions:     t.d.actions,
		Dispatcher:  t.d,
		Timeline:    t.d.timeline,
		OnMark:      t.onMark,
		PreferLocal: t.d.preferLocal,
	})
	quota := newVisitQuota(t.d.maxVisits)

	cur := t.sched.Start()
	for {
		if err := t.info.WaitIfPaused(ctx); err != nil {
			t.info.Cancel()
			return execution.StateCanceled, nil
		}
		if ctx.Err() != nil {
			t.info.Cancel()
		}
		if !quota.take() {
			return execution.StateFailed, NewQuotaError(t.info.ScheduleID(), t.runID, quota.current, quota.limit)
		}

		state, err := procs.Process(ctx, cur, t.info)
		t.visits.Add(1)
		state, err = t.verdict(cur, state, err)
		t.d.observer.VertexProcessed(Visit{
			RunID:    t.runID,
			Schedule: t.info.ScheduleID(),
			Seq:      t.d.clock.Next(),
			Index:    cur.Index(),
			Label:    t.sched.Label(cur.Index()),
			Kind:     cur.Kind(),
			State:    state,
			Err:      err,
		})
		if state != execution.StateExecuting {
			return state, err
		}

		next, err := t.next(ctx, cur)
		if err != nil {
			if t.info.IsCancelled() {
				return execution.StateCanceled, nil
			}
			return execution.StateFailed, err
		}
		cur = next
	}
}

// verdict normalizes a processor result into a run state and a runtime
// error.
func (t *Traversal) verdict(v schedule.Vertex, state execution.State, err error) (execution.State, error) {
	switch state {
	case execution.StateExecuting, execution.StateCompleted, execution.StateCanceled:
		return state, nil
	case execution.StateIncorrectProcessorForVertex:
		return execution.StateFailed, t.fault(v, ErrCodeIncorrectProcessor, "processor does not accept vertex", nil)
	}

	if t.info.IsCancelled() {
		return execution.StateCanceled, nil
	}
	switch {
	case errors.Is(err, processor.ErrMalformedGraph):
		return execution.StateFailed, t.fault(v, ErrCodeMalformedGraph, "vertex cannot be executed", err)
	case errors.Is(err, element.ErrUnknownElement):
		return execution.StateFailed, t.fault(v, ErrCodeUnknownElement, "vertex refers to an unregistered element", err)
	case err == nil:
		return execution.StateFailed, fmt.Errorf("vertex %s failed", t.sched.Label(v.Index()))
	default:
		return execution.StateFailed, fmt.Errorf("vertex %s: %w", t.sched.Label(v.Index()), err)
	}
}

// next picks the first outgoing edge of v, in declaration order, that is
// unconditional or whose condition evaluates true.
func (t *Traversal) next(ctx context.Context, v schedule.Vertex) (schedule.Vertex, error) {
	for _, e := range t.sched.Outbound(v.Index()) {
		if e.Conditional() {
			cond, ok := t.d.conditions.Payload(e.Condition)
			if !ok {
				return nil, t.fault(v, ErrCodeUnknownElement,
					fmt.Sprintf("edge to %s uses unregistered condition %s", t.sched.Label(e.Target), e.Condition), nil)
			}
			take, err := cond.Evaluate(ctx)
			if err != nil {
				return nil, fmt.Errorf("condition %s on edge %s -> %s: %w",
					e.Condition, t.sched.Label(e.Source), t.sched.Label(e.Target), err)
			}
			if !take {
				continue
			}
		}
		target, ok := t.sched.Vertex(e.Target)
		if !ok {
			return nil, t.fault(v, ErrCodeMalformedGraph, fmt.Sprintf("edge target %d does not exist", e.Target), nil)
		}
		return target, nil
	}
	return nil, t.fault(v, ErrCodeMalformedGraph, "no eligible outgoing edge", nil)
}

func (t *Traversal) onMark(v schedule.HistoryMark, info *execution.Info, m history.TimeMarker) {
	t.d.observer.Marked(Mark{
		RunID:    info.RunID(),
		Schedule: info.ScheduleID(),
		Seq:      t.d.clock.Next(),
		Index:    v.Idx,
		Label:    t.sched.Label(v.Idx),
		Marker:   m,
	})
}

func (t *Traversal) fault(v schedule.Vertex, code RuntimeErrorCode, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     code,
		Message:  msg,
		Schedule: t.info.ScheduleID(),
		RunID:    t.runID,
		Vertex:   t.sched.Label(v.Index()),
		Cause:    cause,
	}
}

func (t *Traversal) setState(to execution.State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if terr := execution.Transition(t.state, to); terr != nil {
		t.d.logger.Error("invalid run transition", "run", t.runID, "error", terr)
		return
	}
	t.state = to
	t.err = err
}

func (t *Traversal) runInfo() RunInfo {
	ri := RunInfo{
		RunID:        t.runID,
		Schedule:     t.info.ScheduleID(),
		ScheduleName: t.name,
		Local:        true,
		Visits:       t.Visits(),
		Seq:          t.d.clock.Next(),
	}
	if p := t.info.Parent(); p != nil {
		ri.ParentRunID = p.RunID()
	}
	ri.State, ri.Err = t.State(), t.Err()
	return ri
}
