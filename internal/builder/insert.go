package builder

import (
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// Content is something that can be spliced into an insert point.
type Content interface {
	check(b *Builder) error
	vertex(index int) schedule.Vertex
}

type actionContent ir.ElementID

func (c actionContent) check(b *Builder) error { return b.checkAction(ir.ElementID(c)) }
func (c actionContent) vertex(i int) schedule.Vertex {
	return schedule.Action{Idx: i, Action: ir.ElementID(c)}
}

type scheduleContent ir.ScheduleID

func (c scheduleContent) check(b *Builder) error { return b.checkSchedule(ir.ScheduleID(c)) }
func (c scheduleContent) vertex(i int) schedule.Vertex {
	return schedule.SubSchedule{Idx: i, Schedule: ir.ScheduleID(c)}
}

// ActionContent splices an action vertex running id.
func ActionContent(id ir.ElementID) Content { return actionContent(id) }

// ScheduleContent splices a sub-schedule vertex dispatching id.
func ScheduleContent(id ir.ScheduleID) Content { return scheduleContent(id) }

// Splice reports the vertices created by InsertIn. Before and After are -1
// when the insert budget ran out and the flanking points were removed.
type Splice struct {
	Content int
	Before  int
	After   int
}

// InsertIn replaces the insert point with a fresh insert point, the
// content and another fresh insert point, linked in that order. Edges
// that entered the point now enter Before; edges that left it now leave
// After. Both new points share the point's budget, reduced by one. Once
// the budget reaches zero every point sharing it is removed and its
// neighbors are linked directly.
func (b *Builder) InsertIn(point int, c Content) (Splice, error) {
	v, ok := b.vertices[point]
	if !ok {
		return Splice{}, errorf("insert: vertex %d does not exist", point)
	}
	if _, ok := v.(schedule.Insert); !ok {
		return Splice{}, errorf("insert: %s is a %s, not an insert point", b.label(point), v.Kind())
	}
	if c == nil {
		return Splice{}, errorf("insert into %s: no content", b.label(point))
	}
	if err := c.check(b); err != nil {
		return Splice{}, err
	}

	g := b.group[point]
	if b.remaining[g] != schedule.Unlimited {
		b.remaining[g]--
	}

	before := b.addInsertIn(g)
	content := b.add(c.vertex)
	after := b.addInsertIn(g)

	for i, e := range b.edges {
		if e.Target == point {
			b.edges[i].Target = before
		}
		if e.Source == point {
			b.edges[i].Source = after
		}
	}
	b.edges = append(b.edges,
		schedule.Edge{Source: before, Target: content},
		schedule.Edge{Source: content, Target: after},
	)
	label, labelled := b.labels[point]
	b.removeVertex(point)
	if labelled {
		// Later insertions at the same label land after this content.
		b.labels[after] = label
	}

	if b.remaining[g] == 0 {
		if err := b.exhaust(g); err != nil {
			return Splice{}, err
		}
		return Splice{Content: content, Before: -1, After: -1}, nil
	}
	return Splice{Content: content, Before: before, After: after}, nil
}

func (b *Builder) addInsertIn(g int) int {
	i := b.add(func(i int) schedule.Vertex { return schedule.Insert{Idx: i, Remaining: b.remaining[g]} })
	b.group[i] = g
	return i
}

// exhaust collapses every insert point in budget group g.
func (b *Builder) exhaust(g int) error {
	for _, i := range b.InsertPoints() {
		if b.group[i] == g {
			if err := b.collapse(i); err != nil {
				return err
			}
		}
	}
	delete(b.remaining, g)
	return nil
}

// collapse deletes an insert point and links each predecessor to each
// successor. The new edges take the place of the incoming edge so the
// predecessor keeps its declaration order. A bridged edge keeps whichever
// side was conditional; both sides being conditional is an error.
func (b *Builder) collapse(point int) error {
	var out []schedule.Edge
	for _, e := range b.edges {
		if e.Source == point && e.Target != point {
			out = append(out, e)
		}
	}

	edges := make([]schedule.Edge, 0, len(b.edges))
	for _, e := range b.edges {
		switch {
		case e.Source == point:
			continue
		case e.Target == point:
			for _, o := range out {
				cond := e.Condition
				if o.Conditional() {
					if e.Conditional() {
						return errorf("collapse %s: both %s -> %s and %s -> %s are conditional",
							b.label(point), b.label(e.Source), b.label(point), b.label(point), b.label(o.Target))
					}
					cond = o.Condition
				}
				edges = append(edges, schedule.Edge{Source: e.Source, Target: o.Target, Condition: cond})
			}
		default:
			edges = append(edges, e)
		}
	}
	b.edges = edges
	b.removeVertex(point)
	return nil
}

func (b *Builder) removeVertex(index int) {
	delete(b.vertices, index)
	delete(b.labels, index)
	delete(b.group, index)
	for i, k := range b.order {
		if k == index {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
