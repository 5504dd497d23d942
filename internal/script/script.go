package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/sequencer/internal/element"
)

// Check reports whether source compiles.
func Check(name, source string) error {
	_, err := compile(name, source)
	return err
}

// Action runs a Lua chunk in a fresh state on every Execute. The chunk
// fails the action by raising an error or by returning false or a string
// message.
type Action struct {
	name   string
	args   map[string]any
	logger *slog.Logger
	proto  *lua.FunctionProto
}

var _ element.Action = (*Action)(nil)

// NewAction compiles source. A nil logger uses slog.Default.
func NewAction(name, source string, args map[string]any, logger *slog.Logger) (*Action, error) {
	proto, err := compile(name, source)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Action{name: name, args: args, logger: logger, proto: proto}, nil
}

func (a *Action) Execute(ctx context.Context) error {
	L := newState(a.name, a.args, a.logger)
	defer L.Close()

	ret, err := call(ctx, L, a.proto)
	if err != nil {
		return fmt.Errorf("lua action %s: %w", a.name, err)
	}
	switch v := ret.(type) {
	case lua.LBool:
		if !bool(v) {
			return fmt.Errorf("lua action %s returned false", a.name)
		}
	case lua.LString:
		return fmt.Errorf("lua action %s: %s", a.name, string(v))
	}
	return nil
}

// Condition evaluates a Lua chunk whose first return value is the verdict.
// The state persists between evaluations, so globals can carry counters
// across loop iterations. Evaluations are serialized.
type Condition struct {
	name  string
	proto *lua.FunctionProto

	mu sync.Mutex
	L  *lua.LState
}

var _ element.Condition = (*Condition)(nil)

// ErrClosed is returned by Evaluate after Close.
var ErrClosed = errors.New("lua condition closed")

// NewCondition compiles source and creates its persistent state.
func NewCondition(name, source string, args map[string]any, logger *slog.Logger) (*Condition, error) {
	proto, err := compile(name, source)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Condition{name: name, proto: proto, L: newState(name, args, logger)}, nil
}

func (c *Condition) Evaluate(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.L == nil {
		return false, ErrClosed
	}

	ret, err := call(ctx, c.L, c.proto)
	if err != nil {
		return false, fmt.Errorf("lua condition %s: %w", c.name, err)
	}
	return lua.LVAsBool(ret), nil
}

// Close releases the Lua state.
func (c *Condition) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.L != nil {
		c.L.Close()
		c.L = nil
	}
}
