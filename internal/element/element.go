// Package element defines the payload contracts executed by schedules and
// the registries that store them.
package element

import (
	"context"
	"errors"

	"github.com/roach88/sequencer/internal/ir"
)

var (
	// ErrArgumentMissing reports a null id or a nil payload where one is required.
	ErrArgumentMissing = errors.New("argument missing")

	// ErrUnknownElement reports an id that is not registered.
	ErrUnknownElement = errors.New("unknown element")
)

// Action is a unit of work run by an action vertex.
//
// Execute must return promptly once ctx is done. A returned error fails
// the run that invoked it.
type Action interface {
	Execute(ctx context.Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) error

// Execute calls f(ctx).
func (f ActionFunc) Execute(ctx context.Context) error { return f(ctx) }

// Condition gates traversal of an edge.
type Condition interface {
	Evaluate(ctx context.Context) (bool, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context) (bool, error)

// Evaluate calls f(ctx).
func (f ConditionFunc) Evaluate(ctx context.Context) (bool, error) { return f(ctx) }

// ActionRegistry stores actions keyed by element id.
type ActionRegistry = Registry[ir.ElementID, Action]

// ConditionRegistry stores conditions keyed by element id.
type ConditionRegistry = Registry[ir.ElementID, Condition]
