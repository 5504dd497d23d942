// Package catalog provides the builtin actions and conditions that
// workflow definitions can reference by name.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/roach88/sequencer/internal/element"
)

// ErrUnknownBuiltin is returned for a builtin name the catalog does not know.
var ErrUnknownBuiltin = errors.New("unknown builtin")

// ErrBadArgument is returned when a builtin argument has the wrong type.
var ErrBadArgument = errors.New("bad builtin argument")

// ActionFactory creates a configured action.
type ActionFactory func(name string, args map[string]any, logger *slog.Logger) (element.Action, error)

// ConditionFactory creates a configured condition.
type ConditionFactory func(args map[string]any) (element.Condition, error)

var actions = map[string]ActionFactory{
	"noop": func(string, map[string]any, *slog.Logger) (element.Action, error) {
		return element.ActionFunc(func(context.Context) error { return nil }), nil
	},
	"log":   newLog,
	"sleep": newSleep,
	"fail":  newFail,
}

var conditions = map[string]ConditionFactory{
	"always": func(map[string]any) (element.Condition, error) {
		return element.ConditionFunc(func(context.Context) (bool, error) { return true, nil }), nil
	},
	"never": func(map[string]any) (element.Condition, error) {
		return element.ConditionFunc(func(context.Context) (bool, error) { return false, nil }), nil
	},
	"count_below": newCountBelow,
}

// Action creates the builtin action called builtin. name is the element
// name used in log output.
func Action(builtin, name string, args map[string]any, logger *slog.Logger) (element.Action, error) {
	f, ok := actions[builtin]
	if !ok {
		return nil, fmt.Errorf("%w action %q", ErrUnknownBuiltin, builtin)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return f(name, args, logger)
}

// Condition creates the builtin condition called builtin.
func Condition(builtin string, args map[string]any) (element.Condition, error) {
	f, ok := conditions[builtin]
	if !ok {
		return nil, fmt.Errorf("%w condition %q", ErrUnknownBuiltin, builtin)
	}
	return f(args)
}

// ActionNames lists the builtin actions in sorted order.
func ActionNames() []string {
	return sortedKeys(actions)
}

// ConditionNames lists the builtin conditions in sorted order.
func ConditionNames() []string {
	return sortedKeys(conditions)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newLog(name string, args map[string]any, logger *slog.Logger) (element.Action, error) {
	msg, err := stringArg(args, "message", name)
	if err != nil {
		return nil, err
	}
	return element.ActionFunc(func(context.Context) error {
		logger.Info(msg, "action", name)
		return nil
	}), nil
}

func newSleep(_ string, args map[string]any, _ *slog.Logger) (element.Action, error) {
	d, err := durationArg(args, "duration", 0)
	if err != nil {
		return nil, err
	}
	return element.ActionFunc(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), nil
}

func newFail(name string, args map[string]any, _ *slog.Logger) (element.Action, error) {
	msg, err := stringArg(args, "message", "action "+name+" failed")
	if err != nil {
		return nil, err
	}
	return element.ActionFunc(func(context.Context) error {
		return errors.New(msg)
	}), nil
}

// newCountBelow is true for the first limit evaluations and false after.
func newCountBelow(args map[string]any) (element.Condition, error) {
	limit, err := intArg(args, "limit", 1)
	if err != nil {
		return nil, err
	}
	var n atomic.Int64
	return element.ConditionFunc(func(context.Context) (bool, error) {
		return n.Add(1) <= limit, nil
	}), nil
}

func stringArg(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrBadArgument, key, v)
	}
	return s, nil
}

func intArg(args map[string]any, key string, def int64) (int64, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrBadArgument, key, v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrBadArgument, key, v)
	}
}

// durationArg accepts a Go duration string ("250ms") or a number of seconds.
func durationArg(args map[string]any, key string, def time.Duration) (time.Duration, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadArgument, key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a duration, got %T", ErrBadArgument, key, v)
	}
}
