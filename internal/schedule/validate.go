package schedule

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is the kind of every structural validation failure.
var ErrInvalidSchedule = errors.New("invalid schedule")

// GraphError describes a structural problem found while building a graph.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidSchedule, Msg: fmt.Sprintf(format, args...)}
}

// validate checks the structural invariants of a schedule:
//   - exactly one Start and one End
//   - no edge enters Start and no edge leaves End
//   - every vertex is reachable from Start
//   - every vertex other than End has an outgoing edge
//   - sync ends refer to sync starts
//   - Insert vertices only appear in partial schedules
func (s *Schedule) validate() error {
	for _, v := range s.vertices {
		switch v := v.(type) {
		case Start:
			if s.start >= 0 {
				return invalidf("more than one start vertex (%d and %d)", s.start, v.Idx)
			}
			s.start = v.Idx
		case End:
			if s.end >= 0 {
				return invalidf("more than one end vertex (%d and %d)", s.end, v.Idx)
			}
			s.end = v.Idx
		case Insert:
			if !s.partial {
				return invalidf("insert vertex %s in compiled schedule", s.Label(v.Idx))
			}
		case SynchronizationEnd:
			start, ok := s.Vertex(v.Start)
			if !ok {
				return invalidf("sync end %s refers to missing vertex %d", s.Label(v.Idx), v.Start)
			}
			if _, ok := start.(SynchronizationStart); !ok {
				return invalidf("sync end %s refers to %s, not a sync start", s.Label(v.Idx), s.Label(v.Start))
			}
		}
	}
	if s.start < 0 {
		return invalidf("missing start vertex")
	}
	if s.end < 0 {
		return invalidf("missing end vertex")
	}

	for _, e := range s.edges {
		if e.Target == s.start {
			return invalidf("edge %s -> %s enters the start vertex", s.Label(e.Source), s.Label(e.Target))
		}
		if e.Source == s.end {
			return invalidf("edge %s -> %s leaves the end vertex", s.Label(e.Source), s.Label(e.Target))
		}
	}

	for p, v := range s.vertices {
		if v.Index() != s.end && len(s.out[p]) == 0 {
			return invalidf("vertex %s has no outgoing edge", s.Label(v.Index()))
		}
	}

	reached := make(map[int]bool, len(s.vertices))
	s.TraverseAllVertices(s.start, func(v Vertex, _ []Edge) bool {
		reached[v.Index()] = true
		return true
	})
	for _, v := range s.vertices {
		if !reached[v.Index()] {
			return invalidf("vertex %s is not reachable from start", s.Label(v.Index()))
		}
	}
	return nil
}
