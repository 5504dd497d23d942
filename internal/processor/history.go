package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/schedule"
)

// HistoryMark requests a checkpoint from the timeline.
type HistoryMark struct {
	timeline history.Timeline
	onMark   MarkFunc
}

// NewHistoryMark creates a history-mark processor. onMark may be nil.
func NewHistoryMark(tl history.Timeline, onMark MarkFunc) *HistoryMark {
	return &HistoryMark{timeline: tl, onMark: onMark}
}

func (*HistoryMark) Accepts() schedule.Kind { return schedule.KindHistoryMark }

func (p *HistoryMark) Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	vx, st, ok := guard[schedule.HistoryMark](v, info)
	if !ok {
		return st, nil
	}
	if p.timeline == nil {
		return execution.StateFailed, errors.New("history mark: no timeline")
	}

	marker, err := p.timeline.Mark(ctx)
	if err != nil {
		if info.IsCancelled() {
			return execution.StateCanceled, nil
		}
		return execution.StateFailed, fmt.Errorf("history mark %d: %w", vx.Idx, err)
	}
	if p.onMark != nil {
		p.onMark(vx, info, marker)
	}
	return execution.StateExecuting, nil
}
