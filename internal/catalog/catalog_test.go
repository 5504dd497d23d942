package catalog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"fail", "log", "noop", "sleep"}, ActionNames())
	assert.Equal(t, []string{"always", "count_below", "never"}, ConditionNames())
}

func TestUnknownBuiltin(t *testing.T) {
	_, err := Action("teleport", "x", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBuiltin)

	_, err = Condition("sometimes", nil)
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	a, err := Action("log", "announce", map[string]any{"message": "deploying"}, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	require.NoError(t, a.Execute(context.Background()))
	assert.Contains(t, buf.String(), "deploying")
	assert.Contains(t, buf.String(), "action=announce")
}

func TestFail(t *testing.T) {
	a, err := Action("fail", "explode", nil, nil)
	require.NoError(t, err)
	assert.EqualError(t, a.Execute(context.Background()), "action explode failed")

	a, err = Action("fail", "explode", map[string]any{"message": "no quota"}, nil)
	require.NoError(t, err)
	assert.EqualError(t, a.Execute(context.Background()), "no quota")
}

func TestSleep(t *testing.T) {
	a, err := Action("sleep", "nap", map[string]any{"duration": "5ms"}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Execute(context.Background()))

	long, err := Action("sleep", "nap", map[string]any{"duration": int64(60)}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, long.Execute(ctx), context.DeadlineExceeded)

	_, err = Action("sleep", "nap", map[string]any{"duration": "soon"}, nil)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = Action("sleep", "nap", map[string]any{"duration": true}, nil)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestCountBelow(t *testing.T) {
	c, err := Condition("count_below", map[string]any{"limit": int64(2)})
	require.NoError(t, err)

	var got []bool
	for range 4 {
		ok, err := c.Evaluate(context.Background())
		require.NoError(t, err)
		got = append(got, ok)
	}
	assert.Equal(t, []bool{true, true, false, false}, got)

	_, err = Condition("count_below", map[string]any{"limit": 1.5})
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = Condition("count_below", map[string]any{"limit": "two"})
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestAlwaysNever(t *testing.T) {
	always, err := Condition("always", nil)
	require.NoError(t, err)
	never, err := Condition("never", nil)
	require.NoError(t, err)

	ok, _ := always.Evaluate(context.Background())
	assert.True(t, ok)
	ok, _ = never.Evaluate(context.Background())
	assert.False(t, ok)
}
