// Package schedule defines the immutable graph a distributor executes.
//
// A Schedule is produced by the builder package and never changes after
// construction. Vertices live in an arena slice; edges refer to vertices by
// index. Each vertex's outgoing edges keep their declaration order, which
// is the order traversal tries them in.
package schedule

import (
	"fmt"

	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/ir"
)

// Edge is a directed link from Source to Target. A non-null Condition must
// evaluate true for the edge to be taken.
type Edge struct {
	Source    int
	Target    int
	Condition ir.ElementID
}

// Conditional reports whether the edge is gated by a condition.
func (e Edge) Conditional() bool { return !ir.IsZero(e.Condition) }

// Registry stores schedules keyed by schedule id.
type Registry = element.Registry[ir.ScheduleID, *Schedule]

// Schedule is an immutable executable graph.
type Schedule struct {
	vertices []Vertex
	edges    []Edge
	pos      map[int]int
	out      [][]Edge
	labels   map[int]string
	start    int
	end      int
	partial  bool
}

// Option configures New.
type Option func(*Schedule)

// WithLabels attaches human-readable names to vertex indices.
func WithLabels(labels map[int]string) Option {
	return func(s *Schedule) {
		for i, l := range labels {
			s.labels[i] = l
		}
	}
}

// AllowInserts permits Insert vertices, producing a partially built graph.
func AllowInserts() Option {
	return func(s *Schedule) { s.partial = true }
}

// New builds and validates a schedule from vertices and edges.
// Edges are kept in the order given.
func New(vertices []Vertex, edges []Edge, opts ...Option) (*Schedule, error) {
	s := &Schedule{
		vertices: append([]Vertex(nil), vertices...),
		edges:    append([]Edge(nil), edges...),
		pos:      make(map[int]int, len(vertices)),
		out:      make([][]Edge, len(vertices)),
		labels:   make(map[int]string),
		start:    -1,
		end:      -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	for p, v := range s.vertices {
		if v == nil {
			return nil, invalidf("vertex at position %d is nil", p)
		}
		if _, dup := s.pos[v.Index()]; dup {
			return nil, invalidf("duplicate vertex index %d", v.Index())
		}
		s.pos[v.Index()] = p
	}
	for _, e := range s.edges {
		p, ok := s.pos[e.Source]
		if !ok {
			return nil, invalidf("edge source %d does not exist", e.Source)
		}
		if _, ok := s.pos[e.Target]; !ok {
			return nil, invalidf("edge target %d does not exist", e.Target)
		}
		s.out[p] = append(s.out[p], e)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start returns the entry vertex.
func (s *Schedule) Start() Vertex { return s.vertices[s.pos[s.start]] }

// End returns the exit vertex.
func (s *Schedule) End() Vertex { return s.vertices[s.pos[s.end]] }

// Vertex returns the vertex with the given index.
func (s *Schedule) Vertex(index int) (Vertex, bool) {
	p, ok := s.pos[index]
	if !ok {
		return nil, false
	}
	return s.vertices[p], true
}

// Vertices returns every vertex in arena order.
func (s *Schedule) Vertices() []Vertex {
	return append([]Vertex(nil), s.vertices...)
}

// Edges returns every edge in declaration order.
func (s *Schedule) Edges() []Edge {
	return append([]Edge(nil), s.edges...)
}

// Outbound returns the edges leaving index in declaration order.
func (s *Schedule) Outbound(index int) []Edge {
	p, ok := s.pos[index]
	if !ok {
		return nil
	}
	return append([]Edge(nil), s.out[p]...)
}

// Len returns the number of vertices.
func (s *Schedule) Len() int { return len(s.vertices) }

// Partial reports whether the schedule may still contain Insert vertices.
func (s *Schedule) Partial() bool { return s.partial }

// Label returns the name attached to index, or "<kind>#<index>".
func (s *Schedule) Label(index int) string {
	if l, ok := s.labels[index]; ok && l != "" {
		return l
	}
	if v, ok := s.Vertex(index); ok {
		return fmt.Sprintf("%s#%d", v.Kind(), index)
	}
	return fmt.Sprintf("#%d", index)
}

// IndexOf returns the index of the vertex labelled name.
func (s *Schedule) IndexOf(name string) (int, bool) {
	for _, v := range s.vertices {
		if s.Label(v.Index()) == name {
			return v.Index(), true
		}
	}
	return 0, false
}

// TraverseAllVertices walks the graph breadth-first from start, calling
// visit once per reachable vertex with its outgoing edges in declaration
// order. Each vertex is visited at most once, even on cycles. Traversal
// stops as soon as visit returns false.
func (s *Schedule) TraverseAllVertices(start int, visit func(Vertex, []Edge) bool) {
	if _, ok := s.pos[start]; !ok {
		return
	}
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		p := s.pos[idx]
		if !visit(s.vertices[p], append([]Edge(nil), s.out[p]...)) {
			return
		}
		for _, e := range s.out[p] {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
}

// Describe returns the canonical map form of the graph.
func (s *Schedule) Describe() map[string]any {
	vertices := make([]any, 0, len(s.vertices))
	for _, v := range s.vertices {
		d := describe(v)
		if l, ok := s.labels[v.Index()]; ok && l != "" {
			d["label"] = l
		}
		vertices = append(vertices, d)
	}
	edges := make([]any, 0, len(s.edges))
	for _, e := range s.edges {
		d := map[string]any{"from": e.Source, "to": e.Target}
		if e.Conditional() {
			d["when"] = string(e.Condition)
		}
		edges = append(edges, d)
	}
	return map[string]any{
		"vertices": vertices,
		"edges":    edges,
	}
}

// Fingerprint returns a content hash of the graph structure. Two schedules
// with the same vertices, edges and labels have the same fingerprint.
func (s *Schedule) Fingerprint() (string, error) {
	return ir.Fingerprint(ir.DomainSchedule, s.Describe())
}

// References returns the distinct sub-schedule ids this graph dispatches,
// in arena order.
func (s *Schedule) References() []ir.ScheduleID {
	var out []ir.ScheduleID
	seen := make(map[ir.ScheduleID]bool)
	for _, v := range s.vertices {
		if sub, ok := v.(SubSchedule); ok && !seen[sub.Schedule] {
			seen[sub.Schedule] = true
			out = append(out, sub.Schedule)
		}
	}
	return out
}
