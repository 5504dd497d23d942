// Package script implements actions and conditions written in Lua.
//
// Scripts run in a sandbox: only the base, table, string and math
// libraries are loaded, file loading and randomness are removed, and
// print is replaced by log. Every script sees its configured arguments in
// the global table args.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// compile parses source once so syntax errors surface when the element is
// defined rather than when it first runs.
func compile(name, source string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return proto, nil
}

// newState creates a sandboxed state with the script API registered.
func newState(name string, args map[string]any, logger *slog.Logger) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibs(L)

	L.SetGlobal("args", goToLua(L, args))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logger.Info(L.CheckString(1), "script", name)
		return 0
	}))
	L.SetGlobal("sleep", L.NewFunction(luaSleep))
	return L
}

// openSafeLibs loads only the safe standard libraries
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Remove non-deterministic math functions
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

// luaSleep implements sleep(seconds). It returns early with an error when
// the run is canceled.
func luaSleep(L *lua.LState) int {
	d := time.Duration(float64(L.CheckNumber(1)) * float64(time.Second))
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		L.RaiseError("sleep interrupted: %v", ctx.Err())
	}
	return 0
}

// call runs proto on L with ctx bound and returns its first result.
func call(ctx context.Context, L *lua.LState, proto *lua.FunctionProto) (lua.LValue, error) {
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if ctx.Err() != nil {
			return lua.LNil, ctx.Err()
		}
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// goToLua converts a Go value to a Lua value
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
