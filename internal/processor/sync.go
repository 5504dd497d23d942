package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/schedule"
)

// SynchronizationStart opens a barrier block.
type SynchronizationStart struct{}

func (SynchronizationStart) Accepts() schedule.Kind { return schedule.KindSynchronizationStart }

func (SynchronizationStart) Process(_ context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	vx, st, ok := guard[schedule.SynchronizationStart](v, info)
	if !ok {
		return st, nil
	}
	info.OpenBlock(vx.Idx, vx.Variables)
	return execution.StateExecuting, nil
}

// SynchronizationEnd waits for every run dispatched inside its block.
type SynchronizationEnd struct{}

func (SynchronizationEnd) Accepts() schedule.Kind { return schedule.KindSynchronizationEnd }

// Process closes the block opened by the matching start and blocks until
// each tracked run has finished. A failed run fails the barrier; canceled
// runs count as finished.
func (SynchronizationEnd) Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	vx, st, ok := guard[schedule.SynchronizationEnd](v, info)
	if !ok {
		return st, nil
	}

	block, open := info.CloseBlock(vx.Start)
	if !open {
		return execution.StateFailed, fmt.Errorf("%w: sync end %d reached without open block %d",
			ErrMalformedGraph, vx.Idx, vx.Start)
	}
	return await(ctx, info, block.Runs)
}

// await collects completion messages from one tracker goroutine per run.
func await(ctx context.Context, info *execution.Info, runs []execution.Handle) (execution.State, error) {
	if len(runs) == 0 {
		return execution.StateExecuting, nil
	}

	finished := make(chan execution.Handle, len(runs))
	stop := make(chan struct{})
	defer close(stop)

	for _, run := range runs {
		go func() {
			select {
			case <-run.Done():
				finished <- run
			case <-stop:
			}
		}()
	}

	var failure error
	for range runs {
		select {
		case run := <-finished:
			if run.State() == execution.StateFailed && failure == nil {
				failure = runFailure(run)
			}
		case <-info.Cancelled():
			return execution.StateCanceled, nil
		case <-ctx.Done():
			if info.IsCancelled() {
				return execution.StateCanceled, nil
			}
			return execution.StateFailed, ctx.Err()
		}
	}
	if failure != nil {
		return execution.StateFailed, failure
	}
	return execution.StateExecuting, nil
}

var errRunFailed = errors.New("sub-schedule run failed")

func runFailure(run execution.Handle) error {
	if err := run.Err(); err != nil {
		return fmt.Errorf("%w: %w", errRunFailed, err)
	}
	return errRunFailed
}
