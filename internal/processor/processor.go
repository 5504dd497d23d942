// Package processor implements the per-variant vertex processors.
//
// Every processor follows the same preamble: a canceled run yields
// StateCanceled with no side effects, and a vertex of the wrong variant
// yields StateIncorrectProcessorForVertex. Only then does the processor do
// its work.
package processor

import (
	"context"
	"errors"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/history"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// ErrMalformedGraph reports a graph that cannot be executed as built.
var ErrMalformedGraph = errors.New("malformed graph")

// Processor handles one vertex variant.
type Processor interface {
	Accepts() schedule.Kind
	Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error)
}

// Dispatcher starts sub-schedule runs.
type Dispatcher interface {
	ExecuteSubSchedule(ctx context.Context, id ir.ScheduleID, vars []ir.Variable, parent *execution.Info, preferLocal bool) (execution.Handle, error)
}

// MarkFunc receives every checkpoint issued by a history-mark vertex.
type MarkFunc func(v schedule.HistoryMark, info *execution.Info, m history.TimeMarker)

// Deps are the collaborators processors need.
type Deps struct {
	Actions     *element.ActionRegistry
	Dispatcher  Dispatcher
	Timeline    history.Timeline
	OnMark      MarkFunc
	PreferLocal bool
}

// guard runs the common preamble and converts v to its concrete variant.
func guard[V schedule.Vertex](v schedule.Vertex, info *execution.Info) (V, execution.State, bool) {
	var zero V
	if info.IsCancelled() {
		return zero, execution.StateCanceled, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, execution.StateIncorrectProcessorForVertex, false
	}
	return typed, execution.StateExecuting, true
}

// Set dispatches vertices to the processor for their variant.
type Set struct {
	byKind map[schedule.Kind]Processor
}

// NewSet creates the processors for every vertex variant.
func NewSet(deps Deps) *Set {
	s := &Set{byKind: make(map[schedule.Kind]Processor)}
	for _, p := range []Processor{
		Start{},
		End{},
		NoOp{},
		Insert{},
		&Action{actions: deps.Actions},
		NewSubSchedule(deps.Dispatcher, deps.PreferLocal),
		SynchronizationStart{},
		SynchronizationEnd{},
		&HistoryMark{timeline: deps.Timeline, onMark: deps.OnMark},
	} {
		s.byKind[p.Accepts()] = p
	}
	return s
}

// For returns the processor registered for kind.
func (s *Set) For(kind schedule.Kind) (Processor, bool) {
	p, ok := s.byKind[kind]
	return p, ok
}

// Process dispatches v to the processor for its kind.
func (s *Set) Process(ctx context.Context, v schedule.Vertex, info *execution.Info) (execution.State, error) {
	if v == nil {
		return execution.StateIncorrectProcessorForVertex, nil
	}
	p, ok := s.For(v.Kind())
	if !ok {
		return execution.StateIncorrectProcessorForVertex, nil
	}
	return p.Process(ctx, v, info)
}
