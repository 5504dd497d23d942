package processor

import (
	"context"
	"fmt"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/schedule"
)

// SubSchedule dispatches a nested run and continues without waiting for it.
type SubSchedule struct {
	dispatcher  Dispatcher
	preferLocal bool
}

// NewSubSchedule creates a sub-schedule processor.
func NewSubSchedule(d Dispatcher, preferLocal bool) *SubSchedule {
	return &SubSchedule{dispatcher: d, preferLocal: preferLocal}
}

func (*SubSchedule) Accepts() schedule.Kind { return schedule.KindSubSchedule }

// Process hands the schedule id, the run's variables and info to the
// dispatcher. The returned run is tracked by every open synchronization
// block so a later sync end can wait for it.
func (p *SubSchedule) Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	vx, st, ok := guard[schedule.SubSchedule](v, info)
	if !ok {
		return st, nil
	}
	if p.dispatcher == nil {
		return execution.StateFailed, fmt.Errorf("sub-schedule %s: no dispatcher", vx.Schedule)
	}

	run, err := p.dispatcher.ExecuteSubSchedule(ctx, vx.Schedule, info.Variables(), info, p.preferLocal)
	if err != nil {
		return execution.StateFailed, fmt.Errorf("sub-schedule %s: %w", vx.Schedule, err)
	}
	info.Track(run)
	return execution.StateExecuting, nil
}
