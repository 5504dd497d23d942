package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sequencer/internal/compiler"
	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
	"github.com/roach88/sequencer/internal/store"
)

// runTimeout bounds a scenario that never finishes.
const runTimeout = 30 * time.Second

// Options tunes a harness run.
type Options struct {
	// Logger receives engine and script logs. Defaults to discarding.
	Logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs on fresh registries and a fresh in-memory database.
// Ids come from sequential generators so traces are reproducible:
// runs are run-1, run-2, ... in dispatch order.
//
// Execution flow:
//  1. Load and merge the CUE packages listed in Specs
//  2. Install them and look up the scenario's schedule
//  3. Run it, recording every run into the store
//  4. Read the runs back and evaluate expectations and assertions
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	def, err := loadDefinitions(scenario.Definitions)
	if err != nil {
		return nil, err
	}
	env := compiler.Env{
		Actions:    element.NewRegistry[ir.ElementID, element.Action](idgen.NewSequence("action")),
		Conditions: element.NewRegistry[ir.ElementID, element.Condition](idgen.NewSequence("condition")),
		Schedules:  element.NewRegistry[ir.ScheduleID, *schedule.Schedule](idgen.NewSequence("schedule")),
		Logger:     logger,
	}
	installed, err := compiler.Install(def, env)
	if err != nil {
		return nil, fmt.Errorf("failed to install definitions: %w", err)
	}
	root, ok := installed.Schedule(scenario.Schedule)
	if !ok {
		return nil, fmt.Errorf("schedule %q is not defined", scenario.Schedule)
	}
	if scenario.CancelAt != "" {
		sched, _ := env.Schedules.Payload(root)
		if _, ok := sched.IndexOf(scenario.CancelAt); !ok {
			return nil, fmt.Errorf("cancel_at vertex %q is not in schedule %q", scenario.CancelAt, scenario.Schedule)
		}
	}

	rec := store.NewRecorder(ctx, st, logger)
	async := engine.NewAsyncObserver(rec)
	cancel := &cancelAt{label: scenario.CancelAt}

	engineOpts := []engine.Option{
		engine.WithObserver(engine.MultiObserver{cancel, async}),
		engine.WithTimeline(store.NewTimeline(st, idgen.NewSequence("marker"))),
		engine.WithRunIDs(idgen.NewSequence("run")),
		engine.WithLogger(logger),
	}
	if scenario.MaxVisits > 0 {
		engineOpts = append(engineOpts, engine.WithMaxVisits(scenario.MaxVisits))
	}
	d := engine.NewDistributor(env.Schedules, env.Actions, env.Conditions, engineOpts...)
	cancel.cancel = func() { d.Cancel(root) }

	runCtx, stop := context.WithTimeout(ctx, runTimeout)
	defer stop()

	ex, err := d.Execute(runCtx, root)
	if err != nil {
		async.Close()
		return nil, fmt.Errorf("failed to start %s: %w", scenario.Schedule, err)
	}
	if _, err := ex.Wait(runCtx); err != nil {
		d.CancelAll()
		async.Close()
		return nil, fmt.Errorf("waiting for %s: %w", scenario.Schedule, err)
	}
	// Fire-and-continue children may outlive the root.
	if err := d.Wait(runCtx); err != nil {
		d.CancelAll()
		async.Close()
		return nil, fmt.Errorf("waiting for sub-schedules: %w", err)
	}
	async.Close()
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("failed to record runs: %w", err)
	}

	result := NewResult()
	if result.Runs, err = readRuns(ctx, st, ex.RunID()); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateExpect(result, scenario.Expect) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadDefinitions(dirs []string) (*compiler.Definition, error) {
	merged := &compiler.Definition{}
	for _, dir := range dirs {
		def, err := compiler.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load definitions from %s: %w", dir, err)
		}
		merged.Actions = append(merged.Actions, def.Actions...)
		merged.Conditions = append(merged.Conditions, def.Conditions...)
		merged.Schedules = append(merged.Schedules, def.Schedules...)
	}
	return merged, nil
}

// readRuns returns the root run followed by every other recorded run in
// id order.
func readRuns(ctx context.Context, st *store.Store, rootID string) ([]RunTrace, error) {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	slices.SortFunc(runs, func(a, b store.Run) int {
		switch {
		case a.ID == rootID:
			return -1
		case b.ID == rootID:
			return 1
		}
		// Sequential ids: shorter is older.
		return cmp.Or(cmp.Compare(len(a.ID), len(b.ID)), cmp.Compare(a.ID, b.ID))
	})

	out := make([]RunTrace, 0, len(runs))
	for _, r := range runs {
		visits, err := st.ReadVisits(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read visits of %s: %w", r.ID, err)
		}
		marks, err := st.ReadMarks(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read marks of %s: %w", r.ID, err)
		}

		rt := RunTrace{
			RunID:    r.ID,
			ParentID: r.ParentID,
			Schedule: r.ScheduleName,
			State:    r.State,
			Error:    r.Error,
			Visits:   make([]VisitTrace, len(visits)),
			Marks:    make([]string, len(marks)),
		}
		for i, v := range visits {
			rt.Visits[i] = VisitTrace{Label: v.Label, Kind: v.Kind, State: v.State, Error: v.Error}
		}
		for i, m := range marks {
			rt.Marks[i] = m.Label
		}
		out = append(out, rt)
	}
	return out, nil
}

// cancelAt cancels the root run from inside its traversal, right after
// the labelled vertex was processed, so the cut-off point is the same on
// every run.
type cancelAt struct {
	engine.NopObserver

	label  string
	cancel func()

	mu   sync.Mutex
	root string
	done bool
}

func (c *cancelAt) RunStarted(r engine.RunInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.ParentRunID == "" && c.root == "" {
		c.root = r.RunID
	}
}

func (c *cancelAt) VertexProcessed(v engine.Visit) {
	c.mu.Lock()
	fire := c.label != "" && !c.done && v.RunID == c.root && v.Label == c.label
	if fire {
		c.done = true
	}
	c.mu.Unlock()
	if fire {
		c.cancel()
	}
}
