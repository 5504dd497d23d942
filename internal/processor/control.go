package processor

import (
	"context"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/schedule"
)

// Start accepts the entry vertex.
type Start struct{}

func (Start) Accepts() schedule.Kind { return schedule.KindStart }

func (Start) Process(_ context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	_, st, _ := guard[schedule.Start](v, info)
	return st, nil
}

// End accepts the exit vertex and completes the run.
type End struct{}

func (End) Accepts() schedule.Kind { return schedule.KindEnd }

func (End) Process(_ context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	if _, st, ok := guard[schedule.End](v, info); !ok {
		return st, nil
	}
	return execution.StateCompleted, nil
}

// NoOp passes through.
type NoOp struct{}

func (NoOp) Accepts() schedule.Kind { return schedule.KindNoOp }

func (NoOp) Process(_ context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	_, st, _ := guard[schedule.NoOp](v, info)
	return st, nil
}

// Insert passes through. Insert vertices only survive in partially built
// schedules.
type Insert struct{}

func (Insert) Accepts() schedule.Kind { return schedule.KindInsert }

func (Insert) Process(_ context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	_, st, _ := guard[schedule.Insert](v, info)
	return st, nil
}
