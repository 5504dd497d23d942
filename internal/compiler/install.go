package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/sequencer/internal/builder"
	"github.com/roach88/sequencer/internal/catalog"
	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
	"github.com/roach88/sequencer/internal/script"
)

// Env holds the registries a definition is installed into.
type Env struct {
	Actions    *element.ActionRegistry
	Conditions *element.ConditionRegistry
	Schedules  *schedule.Registry
	Logger     *slog.Logger
}

// Installed maps definition names to the ids they were registered under.
type Installed struct {
	Actions    map[string]ir.ElementID
	Conditions map[string]ir.ElementID
	Schedules  map[string]ir.ScheduleID

	// Order lists schedule names in the order they were registered.
	Order []string
}

// Schedule returns the id schedule name was registered under.
func (in *Installed) Schedule(name string) (ir.ScheduleID, bool) {
	id, ok := in.Schedules[name]
	return id, ok
}

// Install validates def and registers its actions, conditions and
// schedules. Schedules are registered after the schedules they reference.
// Nothing is installed when validation fails; a failure part way through
// registration leaves the elements registered so far in place.
func Install(def *Definition, env Env) (*Installed, error) {
	if errs := Validate(def); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, errors.Join(joined...)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}

	out := &Installed{
		Actions:    make(map[string]ir.ElementID, len(def.Actions)),
		Conditions: make(map[string]ir.ElementID, len(def.Conditions)),
		Schedules:  make(map[string]ir.ScheduleID, len(def.Schedules)),
	}

	for _, a := range def.Actions {
		payload, err := newAction(a, env.Logger)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		info, err := env.Actions.Add(payload, a.Name, a.Description)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		out.Actions[a.Name] = info.ID
	}
	for _, c := range def.Conditions {
		payload, err := newCondition(c, env.Logger)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", c.Name, err)
		}
		info, err := env.Conditions.Add(payload, c.Name, c.Description)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", c.Name, err)
		}
		out.Conditions[c.Name] = info.ID
	}

	order, _ := installOrder(def)
	for _, name := range order {
		s, _ := def.Schedule(name)
		id, err := buildSchedule(s, env, out)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		out.Schedules[name] = id
		out.Order = append(out.Order, name)
		env.Logger.Debug("schedule installed", "schedule", name, "id", id)
	}
	return out, nil
}

func newAction(a ElementDef, logger *slog.Logger) (element.Action, error) {
	if a.Lua != "" {
		act, err := script.NewAction(a.Name, a.Lua, a.Args, logger)
		if err != nil {
			return nil, err
		}
		return act, nil
	}
	return catalog.Action(a.Builtin, a.Name, a.Args, logger)
}

func newCondition(c ElementDef, logger *slog.Logger) (element.Condition, error) {
	if c.Lua != "" {
		cond, err := script.NewCondition(c.Name, c.Lua, c.Args, logger)
		if err != nil {
			return nil, err
		}
		return cond, nil
	}
	return catalog.Condition(c.Builtin, c.Args)
}

// buildSchedule adds vertices in declaration order, except that sync_end
// vertices are added once every sync_start exists.
func buildSchedule(s ScheduleDef, env Env, ids *Installed) (ir.ScheduleID, error) {
	b := builder.New(env.Actions, env.Conditions, env.Schedules)
	index := map[string]int{
		LabelStart: builder.StartIndex,
		LabelEnd:   builder.EndIndex,
	}
	for label, i := range index {
		if err := b.SetLabel(i, label); err != nil {
			return "", err
		}
	}

	add := func(v VertexDef) error {
		i, err := addVertex(b, v, index, ids)
		if err != nil {
			return fmt.Errorf("vertex %s: %w", v.Label, err)
		}
		if err := b.SetLabel(i, v.Label); err != nil {
			return err
		}
		index[v.Label] = i
		return nil
	}
	for _, v := range s.Vertices {
		if v.Kind != schedule.KindSynchronizationEnd {
			if err := add(v); err != nil {
				return "", err
			}
		}
	}
	for _, v := range s.Vertices {
		if v.Kind == schedule.KindSynchronizationEnd {
			if err := add(v); err != nil {
				return "", err
			}
		}
	}

	for _, e := range s.Edges {
		var cond ir.ElementID
		if e.When != "" {
			cond = ids.Conditions[e.When]
		}
		if err := b.LinkTo(index[e.From], index[e.To], cond); err != nil {
			return "", err
		}
	}

	for _, in := range s.Insertions {
		// The label moves to the point following earlier insertions.
		point, ok := b.Index(in.Point)
		if !ok {
			return "", fmt.Errorf("insert point %s has no uses left", in.Point)
		}
		content := builder.ActionContent(ids.Actions[in.Action])
		if in.Schedule != "" {
			content = builder.ScheduleContent(ids.Schedules[in.Schedule])
		}
		if _, err := b.InsertIn(point, content); err != nil {
			return "", err
		}
	}

	return b.Register(s.Name, s.Description)
}

func addVertex(b *builder.Builder, v VertexDef, index map[string]int, ids *Installed) (int, error) {
	switch v.Kind {
	case schedule.KindAction:
		return b.AddAction(ids.Actions[v.Action])
	case schedule.KindSubSchedule:
		return b.AddSubSchedule(ids.Schedules[v.Schedule])
	case schedule.KindSynchronizationStart:
		vars := make([]ir.Variable, len(v.Variables))
		for i, name := range v.Variables {
			vars[i] = ir.Variable(name)
		}
		return b.AddSynchronizationStart(vars...), nil
	case schedule.KindSynchronizationEnd:
		return b.AddSynchronizationEnd(index[v.Start])
	case schedule.KindInsert:
		if v.MaxUses > 0 {
			return b.AddBoundedInsertPoint(v.MaxUses)
		}
		return b.AddInsertPoint(), nil
	case schedule.KindNoOp:
		return b.AddNoOp(), nil
	case schedule.KindHistoryMark:
		return b.AddHistoryMark(), nil
	default:
		return 0, fmt.Errorf("cannot declare a %s vertex", v.Kind)
	}
}
