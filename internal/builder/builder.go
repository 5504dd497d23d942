// Package builder accumulates an editable schedule and freezes it into an
// immutable schedule.Schedule.
//
// A Builder starts with a Start vertex (index 0) and an End vertex
// (index 1). Callers add vertices, link them explicitly and optionally
// splice content into insert points. Register compiles the result, stores
// it in the schedule registry and returns its id. Clear discards the
// in-progress graph without touching schedules registered earlier.
//
// A Builder is not safe for concurrent use.
package builder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// Indices of the vertices every builder starts with.
const (
	StartIndex = 0
	EndIndex   = 1
)

// ErrBuild is the kind of every error raised while editing a graph.
var ErrBuild = errors.New("build schedule")

// Builder accumulates vertices and edges for one schedule.
type Builder struct {
	actions    *element.ActionRegistry
	conditions *element.ConditionRegistry
	schedules  *schedule.Registry

	next     int
	order    []int
	vertices map[int]schedule.Vertex
	edges    []schedule.Edge
	labels   map[int]string

	// Insert vertices created by splicing share the budget of the point
	// they replaced.
	group     map[int]int
	remaining map[int]int
}

// New creates a builder that resolves references against the given
// registries.
func New(actions *element.ActionRegistry, conditions *element.ConditionRegistry, schedules *schedule.Registry) *Builder {
	b := &Builder{
		actions:    actions,
		conditions: conditions,
		schedules:  schedules,
	}
	b.Clear()
	return b
}

// Clear discards all vertices and edges added since New or the last Clear.
func (b *Builder) Clear() {
	b.next = 0
	b.order = nil
	b.vertices = make(map[int]schedule.Vertex)
	b.edges = nil
	b.labels = make(map[int]string)
	b.group = make(map[int]int)
	b.remaining = make(map[int]int)

	b.add(func(i int) schedule.Vertex { return schedule.Start{Idx: i} })
	b.add(func(i int) schedule.Vertex { return schedule.End{Idx: i} })
	b.labels[StartIndex] = "start"
	b.labels[EndIndex] = "end"
}

func (b *Builder) add(mk func(int) schedule.Vertex) int {
	i := b.next
	b.next++
	b.vertices[i] = mk(i)
	b.order = append(b.order, i)
	return i
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBuild, fmt.Sprintf(format, args...))
}

// AddAction adds a vertex running the registered action id.
func (b *Builder) AddAction(id ir.ElementID) (int, error) {
	if err := b.checkAction(id); err != nil {
		return 0, err
	}
	return b.add(func(i int) schedule.Vertex { return schedule.Action{Idx: i, Action: id} }), nil
}

// AddSubSchedule adds a vertex dispatching the registered schedule id.
func (b *Builder) AddSubSchedule(id ir.ScheduleID) (int, error) {
	if err := b.checkSchedule(id); err != nil {
		return 0, err
	}
	return b.add(func(i int) schedule.Vertex { return schedule.SubSchedule{Idx: i, Schedule: id} }), nil
}

// AddSynchronizationStart opens a barrier block over vars.
func (b *Builder) AddSynchronizationStart(vars ...ir.Variable) int {
	set := ir.NewVariableSet(vars...)
	return b.add(func(i int) schedule.Vertex {
		return schedule.SynchronizationStart{Idx: i, Variables: set}
	})
}

// AddSynchronizationEnd closes the block opened at start.
func (b *Builder) AddSynchronizationEnd(start int) (int, error) {
	v, ok := b.vertices[start]
	if !ok {
		return 0, errorf("sync end: vertex %d does not exist", start)
	}
	if _, ok := v.(schedule.SynchronizationStart); !ok {
		return 0, errorf("sync end: vertex %d is a %s, not a sync start", start, v.Kind())
	}
	return b.add(func(i int) schedule.Vertex { return schedule.SynchronizationEnd{Idx: i, Start: start} }), nil
}

// AddInsertPoint adds an insert point with no limit on insertions.
func (b *Builder) AddInsertPoint() int {
	return b.addInsert(schedule.Unlimited)
}

// AddBoundedInsertPoint adds an insert point accepting at most maxUses
// insertions.
func (b *Builder) AddBoundedInsertPoint(maxUses int) (int, error) {
	if maxUses <= 0 {
		return 0, errorf("insert point budget must be positive, got %d", maxUses)
	}
	return b.addInsert(maxUses), nil
}

func (b *Builder) addInsert(budget int) int {
	i := b.add(func(i int) schedule.Vertex { return schedule.Insert{Idx: i, Remaining: budget} })
	b.group[i] = i
	b.remaining[i] = budget
	return i
}

// AddHistoryMark adds a timeline checkpoint vertex.
func (b *Builder) AddHistoryMark() int {
	return b.add(func(i int) schedule.Vertex { return schedule.HistoryMark{Idx: i} })
}

// AddNoOp adds a vertex that does nothing.
func (b *Builder) AddNoOp() int {
	return b.add(func(i int) schedule.Vertex { return schedule.NoOp{Idx: i} })
}

// LinkTo adds an edge from source to target, gated by cond when cond is
// not the null id. Edges leaving a vertex are tried in the order they
// were linked.
func (b *Builder) LinkTo(source, target int, cond ir.ElementID) error {
	if _, ok := b.vertices[source]; !ok {
		return errorf("link: source %d does not exist", source)
	}
	if _, ok := b.vertices[target]; !ok {
		return errorf("link: target %d does not exist", target)
	}
	if target == StartIndex {
		return errorf("link: %s -> start: start cannot have incoming edges", b.label(source))
	}
	if source == EndIndex {
		return errorf("link: end -> %s: end cannot have outgoing edges", b.label(target))
	}
	if !ir.IsZero(cond) && !b.conditions.Contains(cond) {
		return fmt.Errorf("%w: link %s -> %s: condition %s: %w",
			ErrBuild, b.label(source), b.label(target), cond, element.ErrUnknownElement)
	}
	b.edges = append(b.edges, schedule.Edge{Source: source, Target: target, Condition: cond})
	return nil
}

// LinkFromStart links the start vertex to target.
func (b *Builder) LinkFromStart(target int, cond ir.ElementID) error {
	return b.LinkTo(StartIndex, target, cond)
}

// LinkToEnd links source to the end vertex.
func (b *Builder) LinkToEnd(source int, cond ir.ElementID) error {
	return b.LinkTo(source, EndIndex, cond)
}

// SetLabel names a vertex. Labels must be unique within the builder.
func (b *Builder) SetLabel(index int, label string) error {
	if _, ok := b.vertices[index]; !ok {
		return errorf("label %q: vertex %d does not exist", label, index)
	}
	for i, l := range b.labels {
		if l == label && i != index {
			return errorf("label %q already names vertex %d", label, i)
		}
	}
	b.labels[index] = label
	return nil
}

// Index returns the vertex carrying label.
func (b *Builder) Index(label string) (int, bool) {
	for i, l := range b.labels {
		if l == label {
			if _, ok := b.vertices[i]; ok {
				return i, true
			}
		}
	}
	return 0, false
}

// Vertex returns the editable vertex at index.
func (b *Builder) Vertex(index int) (schedule.Vertex, bool) {
	v, ok := b.vertices[index]
	if !ok {
		return nil, false
	}
	return b.materialize(v), true
}

// InsertPoints returns the indices of the remaining insert vertices.
func (b *Builder) InsertPoints() []int {
	var out []int
	for _, i := range b.order {
		if _, ok := b.vertices[i].(schedule.Insert); ok {
			out = append(out, i)
		}
	}
	return out
}

func (b *Builder) label(index int) string {
	if l, ok := b.labels[index]; ok {
		return l
	}
	if v, ok := b.vertices[index]; ok {
		return fmt.Sprintf("%s#%d", v.Kind(), index)
	}
	return fmt.Sprintf("#%d", index)
}

func (b *Builder) checkAction(id ir.ElementID) error {
	if ir.IsZero(id) {
		return fmt.Errorf("%w: action: %w", ErrBuild, element.ErrArgumentMissing)
	}
	if !b.actions.Contains(id) {
		return fmt.Errorf("%w: action %s: %w", ErrBuild, id, element.ErrUnknownElement)
	}
	return nil
}

func (b *Builder) checkSchedule(id ir.ScheduleID) error {
	if ir.IsZero(id) {
		return fmt.Errorf("%w: schedule: %w", ErrBuild, element.ErrArgumentMissing)
	}
	if !b.schedules.Contains(id) {
		return fmt.Errorf("%w: schedule %s: %w", ErrBuild, id, element.ErrUnknownElement)
	}
	return nil
}

// materialize fills in the shared budget of insert vertices.
func (b *Builder) materialize(v schedule.Vertex) schedule.Vertex {
	if ins, ok := v.(schedule.Insert); ok {
		ins.Remaining = b.remaining[b.group[ins.Idx]]
		return ins
	}
	return v
}

func (b *Builder) snapshot() ([]schedule.Vertex, []schedule.Edge, map[int]string) {
	vertices := make([]schedule.Vertex, 0, len(b.order))
	for _, i := range b.order {
		vertices = append(vertices, b.materialize(b.vertices[i]))
	}
	labels := make(map[int]string, len(b.labels))
	for i, l := range b.labels {
		if _, ok := b.vertices[i]; ok {
			labels[i] = l
		}
	}
	return vertices, slices.Clone(b.edges), labels
}

// Build validates and returns the graph as it stands, insert points
// included. The result is not registered.
func (b *Builder) Build() (*schedule.Schedule, error) {
	vertices, edges, labels := b.snapshot()
	return schedule.New(vertices, edges, schedule.WithLabels(labels), schedule.AllowInserts())
}

// Compile returns the graph with every remaining insert point collapsed.
// The builder itself is left unchanged.
func (b *Builder) Compile() (*schedule.Schedule, error) {
	work := b.clone()
	for _, i := range work.InsertPoints() {
		if err := work.collapse(i); err != nil {
			return nil, err
		}
	}
	vertices, edges, labels := work.snapshot()
	return schedule.New(vertices, edges, schedule.WithLabels(labels))
}

// Register compiles the graph, stores it under a new id and returns the id.
func (b *Builder) Register(name, description string) (ir.ScheduleID, error) {
	s, err := b.Compile()
	if err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}
	info, err := b.schedules.Add(s, name, description)
	if err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}
	return info.ID, nil
}

func (b *Builder) clone() *Builder {
	c := &Builder{
		actions:    b.actions,
		conditions: b.conditions,
		schedules:  b.schedules,
		next:       b.next,
		order:      slices.Clone(b.order),
		vertices:   make(map[int]schedule.Vertex, len(b.vertices)),
		edges:      slices.Clone(b.edges),
		labels:     make(map[int]string, len(b.labels)),
		group:      make(map[int]int, len(b.group)),
		remaining:  make(map[int]int, len(b.remaining)),
	}
	for k, v := range b.vertices {
		c.vertices[k] = v
	}
	for k, v := range b.labels {
		c.labels[k] = v
	}
	for k, v := range b.group {
		c.group[k] = v
	}
	for k, v := range b.remaining {
		c.remaining[k] = v
	}
	return c
}
