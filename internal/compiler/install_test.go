package compiler

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

func newEnv(logs *bytes.Buffer) Env {
	return Env{
		Actions:    element.NewRegistry[ir.ElementID, element.Action](idgen.NewSequence("action")),
		Conditions: element.NewRegistry[ir.ElementID, element.Condition](idgen.NewSequence("condition")),
		Schedules:  element.NewRegistry[ir.ScheduleID, *schedule.Schedule](idgen.NewSequence("schedule")),
		Logger:     slog.New(slog.NewTextHandler(logs, nil)),
	}
}

type labelObserver struct {
	engine.NopObserver
	mu     sync.Mutex
	labels map[string][]string
}

func (o *labelObserver) VertexProcessed(v engine.Visit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.labels[v.RunID] = append(o.labels[v.RunID], v.Label)
}

func (o *labelObserver) of(runID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.labels[runID]
}

func TestInstallRelease(t *testing.T) {
	def, err := LoadDir("testdata/release")
	require.NoError(t, err)

	var logs bytes.Buffer
	env := newEnv(&logs)
	installed, err := Install(def, env)
	require.NoError(t, err)

	assert.Equal(t, []string{"verify", "release"}, installed.Order)
	assert.Len(t, installed.Actions, 3)
	assert.Len(t, installed.Conditions, 1)

	info, ok := env.Actions.Information(installed.Actions["build"])
	require.True(t, ok)
	assert.Equal(t, "compile artifacts", info.Description)

	id, ok := installed.Schedule("release")
	require.True(t, ok)
	sched, ok := env.Schedules.Payload(id)
	require.True(t, ok)
	assert.False(t, sched.Partial(), "insert points are collapsed at registration")
	assert.Equal(t, []ir.ScheduleID{installed.Schedules["verify"]}, sched.References())

	obs := &labelObserver{labels: map[string][]string{}}
	d := engine.NewDistributor(env.Schedules, env.Actions, env.Conditions, engine.WithObserver(obs))
	ex, err := d.Execute(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := ex.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, execution.StateCompleted, st)
	require.NoError(t, d.Wait(ctx))

	loop := []string{"compile", "open", "verify", "close", "again"}
	want := []string{"start"}
	for range 3 {
		want = append(want, loop...)
	}
	want = append(want, "action#10", "done", "end")
	assert.Equal(t, want, obs.of(ex.RunID()))

	assert.Contains(t, logs.String(), "release shipped")
	assert.Contains(t, logs.String(), "smoke test staging")
}

func TestInstallInsertionsKeepOrder(t *testing.T) {
	def, err := CompileString(`
		action: {
			a: builtin: "noop"
			b: builtin: "noop"
		}
		schedule: s: {
			vertices: slot: kind: "insert"
			edges: [
				{from: "start", to: "slot"},
				{from: "slot", to: "end"},
			]
			insertions: [
				{point: "slot", action: "a"},
				{point: "slot", action: "b"},
			]
		}
	`, "insert.cue")
	require.NoError(t, err)

	env := newEnv(&bytes.Buffer{})
	installed, err := Install(def, env)
	require.NoError(t, err)

	sched, _ := env.Schedules.Payload(installed.Schedules["s"])
	var actions []ir.ElementID
	sched.TraverseAllVertices(sched.Start().Index(), func(v schedule.Vertex, _ []schedule.Edge) bool {
		if a, ok := v.(schedule.Action); ok {
			actions = append(actions, a.Action)
		}
		return true
	})
	assert.Equal(t, []ir.ElementID{installed.Actions["a"], installed.Actions["b"]}, actions)
}

func TestInstallExhaustedInsertPoint(t *testing.T) {
	def, err := CompileString(`
		action: a: builtin: "noop"
		schedule: s: {
			vertices: slot: {kind: "insert", max_uses: 1}
			edges: [
				{from: "start", to: "slot"},
				{from: "slot", to: "end"},
			]
			insertions: [
				{point: "slot", action: "a"},
				{point: "slot", action: "a"},
			]
		}
	`, "insert.cue")
	require.NoError(t, err)

	_, err = Install(def, newEnv(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "no uses left")
}

func TestInstallRejectsInvalid(t *testing.T) {
	def := linearDef()
	def.Schedules[0].Vertices[0].Action = "ghost"

	env := newEnv(&bytes.Buffer{})
	_, err := Install(def, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrUndefinedReference)
	assert.Zero(t, env.Actions.Len(), "nothing is installed when validation fails")
}
