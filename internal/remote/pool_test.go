package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequencer/internal/builder"
	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

type registries struct {
	actions    *element.ActionRegistry
	conditions *element.ConditionRegistry
	schedules  *schedule.Registry

	mu    sync.Mutex
	calls []string
}

func newRegistries() *registries {
	return &registries{
		actions:    element.NewRegistry[ir.ElementID, element.Action](idgen.NewSequence("action")),
		conditions: element.NewRegistry[ir.ElementID, element.Condition](idgen.NewSequence("condition")),
		schedules:  element.NewRegistry[ir.ScheduleID, *schedule.Schedule](idgen.NewSequence("schedule")),
	}
}

func (r *registries) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// single registers start -> action(name) -> end; the action blocks on gate
// when gate is non-nil.
func (r *registries) single(t *testing.T, name string, gate <-chan struct{}) ir.ScheduleID {
	t.Helper()
	info, err := r.actions.Add(element.ActionFunc(func(ctx context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		if gate == nil {
			return nil
		}
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), name, "")
	require.NoError(t, err)

	b := builder.New(r.actions, r.conditions, r.schedules)
	i, err := b.AddAction(info.ID)
	require.NoError(t, err)
	require.NoError(t, b.LinkFromStart(i, ""))
	require.NoError(t, b.LinkToEnd(i, ""))
	id, err := b.Register(name, "")
	require.NoError(t, err)
	return id
}

func waitDone(t *testing.T, ex engine.Executor) execution.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := ex.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return st
}

func TestPool_RemoteRunCompletes(t *testing.T) {
	r := newRegistries()
	id := r.single(t, "job", nil)
	pool := NewPoolDispatcher(2, r.schedules, r.actions, r.conditions)
	d := engine.NewDistributor(r.schedules, r.actions, r.conditions, engine.WithRemote(pool))

	ex, err := d.ExecuteWith(context.Background(), id, nil, nil, false)
	require.NoError(t, err)
	assert.False(t, ex.IsLocal())
	assert.Equal(t, id, ex.ScheduleID())
	assert.Equal(t, "remote-1", ex.RunID())

	assert.Equal(t, execution.StateCompleted, waitDone(t, ex))
	assert.NoError(t, ex.Err())
	assert.Equal(t, []string{"job"}, r.called())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Close(ctx))
}

// dispatch dispatches id on pool and starts the returned proxy.
func dispatch(t *testing.T, pool *PoolDispatcher, id ir.ScheduleID) engine.Executor {
	t.Helper()
	ex, err := pool.Dispatch(context.Background(), id, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ex.Start(context.Background()))
	return ex
}

func (r *registries) waitCalled(t *testing.T, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range r.called() {
			if c == name {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
}

func TestPool_BoundsInFlightRuns(t *testing.T) {
	r := newRegistries()
	gate := make(chan struct{})
	first := r.single(t, "first", gate)
	second := r.single(t, "second", nil)
	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)

	a := dispatch(t, pool, first)
	r.waitCalled(t, "first")

	b := dispatch(t, pool, second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, execution.StateIdle, b.State(), "second run waits for a slot")
	assert.Equal(t, []string{"first"}, r.called())

	close(gate)
	assert.Equal(t, execution.StateCompleted, waitDone(t, a))
	assert.Equal(t, execution.StateCompleted, waitDone(t, b))
	assert.Equal(t, []string{"first", "second"}, r.called())
}

func TestPool_CancelQueuedRun(t *testing.T) {
	r := newRegistries()
	gate := make(chan struct{})
	defer close(gate)
	busy := r.single(t, "busy", gate)
	queued := r.single(t, "queued", nil)
	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)

	dispatch(t, pool, busy)
	r.waitCalled(t, "busy")

	ex := dispatch(t, pool, queued)
	ex.Cancel()
	ex.Cancel()

	assert.Equal(t, execution.StateCanceled, waitDone(t, ex))
	assert.NotContains(t, r.called(), "queued")
}

func TestPool_UnknownSchedule(t *testing.T) {
	r := newRegistries()
	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)

	_, err := pool.Dispatch(context.Background(), "nope", nil, nil)
	assert.True(t, engine.IsUnknownScheduleError(err))
}

func TestPool_StartTwice(t *testing.T) {
	r := newRegistries()
	id := r.single(t, "job", nil)
	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)

	ex := dispatch(t, pool, id)

	var re *engine.RuntimeError
	require.ErrorAs(t, ex.Start(context.Background()), &re)
	assert.Equal(t, engine.ErrCodeAlreadyStarted, re.Code)
	waitDone(t, ex)
}

func TestPool_SubScheduleDispatchedRemotely(t *testing.T) {
	r := newRegistries()
	child := r.single(t, "child", nil)

	b := builder.New(r.actions, r.conditions, r.schedules)
	open := b.AddSynchronizationStart()
	sub, err := b.AddSubSchedule(child)
	require.NoError(t, err)
	end, err := b.AddSynchronizationEnd(open)
	require.NoError(t, err)
	require.NoError(t, b.LinkFromStart(open, ""))
	require.NoError(t, b.LinkTo(open, sub, ""))
	require.NoError(t, b.LinkTo(sub, end, ""))
	require.NoError(t, b.LinkToEnd(end, ""))
	parent, err := b.Register("parent", "")
	require.NoError(t, err)

	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)
	d := engine.NewDistributor(r.schedules, r.actions, r.conditions,
		engine.WithRemote(pool), engine.WithPreferLocal(false))

	ex, err := d.ExecuteWith(context.Background(), parent, nil, nil, true)
	require.NoError(t, err)
	assert.True(t, ex.IsLocal())
	assert.Equal(t, execution.StateCompleted, waitDone(t, ex))
	assert.Equal(t, []string{"child"}, r.called())
}

func TestPool_DispatchReturnsUnstartedProxy(t *testing.T) {
	r := newRegistries()
	id := r.single(t, "job", nil)
	pool := NewPoolDispatcher(1, r.schedules, r.actions, r.conditions)

	ex, err := pool.Dispatch(context.Background(), id, nil, nil)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, execution.StateIdle, ex.State())
	assert.Empty(t, r.called())

	require.NoError(t, ex.Start(context.Background()))
	assert.Equal(t, execution.StateCompleted, waitDone(t, ex))
}

func TestPool_OneRunPerScheduleAcrossLocalAndRemote(t *testing.T) {
	r := newRegistries()
	gate := make(chan struct{})
	id := r.single(t, "job", gate)
	pool := NewPoolDispatcher(2, r.schedules, r.actions, r.conditions)
	d := engine.NewDistributor(r.schedules, r.actions, r.conditions, engine.WithRemote(pool))

	local, err := d.Execute(context.Background(), id)
	require.NoError(t, err)
	r.waitCalled(t, "job")

	again, err := d.ExecuteWith(context.Background(), id, nil, nil, false)
	require.NoError(t, err)
	assert.Same(t, local, again)

	close(gate)
	assert.Equal(t, execution.StateCompleted, waitDone(t, local))
	assert.Equal(t, []string{"job"}, r.called())
}

func TestPool_RemoteRunBlocksLocalDuplicate(t *testing.T) {
	r := newRegistries()
	gate := make(chan struct{})
	id := r.single(t, "job", gate)
	pool := NewPoolDispatcher(2, r.schedules, r.actions, r.conditions)
	d := engine.NewDistributor(r.schedules, r.actions, r.conditions, engine.WithRemote(pool))

	remote, err := d.ExecuteWith(context.Background(), id, nil, nil, false)
	require.NoError(t, err)
	running, ok := d.Running(id)
	require.True(t, ok)
	assert.Same(t, remote, running)

	again, err := d.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, remote, again)
	assert.False(t, again.IsLocal())

	close(gate)
	assert.Equal(t, execution.StateCompleted, waitDone(t, remote))
	assert.Equal(t, []string{"job"}, r.called())
	require.Eventually(t, func() bool {
		_, ok := d.Running(id)
		return !ok
	}, 2*time.Second, time.Millisecond)
}

func TestPool_SubScheduleSharesCallerRunTable(t *testing.T) {
	r := newRegistries()
	gate := make(chan struct{})
	child := r.single(t, "child", gate)

	b := builder.New(r.actions, r.conditions, r.schedules)
	sub, err := b.AddSubSchedule(child)
	require.NoError(t, err)
	require.NoError(t, b.LinkFromStart(sub, ""))
	require.NoError(t, b.LinkToEnd(sub, ""))
	parent, err := b.Register("parent", "")
	require.NoError(t, err)

	pool := NewPoolDispatcher(2, r.schedules, r.actions, r.conditions)
	d := engine.NewDistributor(r.schedules, r.actions, r.conditions, engine.WithRemote(pool))
	assert.Same(t, d.Runs(), pool.Distributor().Runs())

	// The child starts locally; the remote parent's sub-schedule vertex
	// must get the same executor back instead of a second run.
	local, err := d.Execute(context.Background(), child)
	require.NoError(t, err)
	r.waitCalled(t, "child")

	remote, err := d.ExecuteWith(context.Background(), parent, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, execution.StateCompleted, waitDone(t, remote))

	close(gate)
	assert.Equal(t, execution.StateCompleted, waitDone(t, local))
	assert.Equal(t, []string{"child"}, r.called())
}
