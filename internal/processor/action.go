package processor

import (
	"context"
	"fmt"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/schedule"
)

// Action runs the action payload bound to an action vertex.
type Action struct {
	actions *element.ActionRegistry
}

// NewAction creates an action processor resolving payloads from actions.
func NewAction(actions *element.ActionRegistry) *Action {
	return &Action{actions: actions}
}

func (*Action) Accepts() schedule.Kind { return schedule.KindAction }

// Process invokes the action once with ctx as its cancellation signal.
// An action that fails because the run was canceled yields StateCanceled.
func (p *Action) Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	vx, st, ok := guard[schedule.Action](v, info)
	if !ok {
		return st, nil
	}

	act, found := p.actions.Payload(vx.Action)
	if !found {
		return execution.StateFailed, fmt.Errorf("action %s: %w", vx.Action, element.ErrUnknownElement)
	}
	if err := act.Execute(ctx); err != nil {
		if info.IsCancelled() {
			return execution.StateCanceled, nil
		}
		return execution.StateFailed, fmt.Errorf("action %s: %w", vx.Action, err)
	}
	return execution.StateExecuting, nil
}
