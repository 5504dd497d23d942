package schedule

import (
	"fmt"

	"github.com/roach88/sequencer/internal/ir"
)

// Kind identifies a vertex variant.
type Kind int

const (
	KindStart Kind = iota
	KindEnd
	KindAction
	KindSynchronizationStart
	KindSynchronizationEnd
	KindSubSchedule
	KindInsert
	KindNoOp
	KindHistoryMark
)

var kindNames = [...]string{
	KindStart:                "start",
	KindEnd:                  "end",
	KindAction:               "action",
	KindSynchronizationStart: "sync_start",
	KindSynchronizationEnd:   "sync_end",
	KindSubSchedule:          "schedule",
	KindInsert:               "insert",
	KindNoOp:                 "noop",
	KindHistoryMark:          "history_mark",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Unlimited is the Insert budget meaning "no limit on insertions".
const Unlimited = -1

// Vertex is a step in a schedule graph.
//
// The set of implementations is closed: only types in this package satisfy
// Vertex, so a type switch over the variants below is exhaustive.
type Vertex interface {
	// Index is unique within its graph and stable for the graph's lifetime.
	Index() int
	Kind() Kind
	vertexNode()
}

// Start is the single entry vertex of a schedule.
type Start struct{ Idx int }

// End is the single exit vertex of a schedule.
type End struct{ Idx int }

// Action runs the registered action payload Action.
type Action struct {
	Idx    int
	Action ir.ElementID
}

// SynchronizationStart opens a barrier block guarding Variables.
type SynchronizationStart struct {
	Idx       int
	Variables []ir.Variable
}

// SynchronizationEnd closes the block opened by the vertex at index Start.
type SynchronizationEnd struct {
	Idx   int
	Start int
}

// SubSchedule dispatches the registered schedule Schedule and continues.
type SubSchedule struct {
	Idx      int
	Schedule ir.ScheduleID
}

// Insert marks a point where content may be spliced in at build time.
// Remaining is the number of insertions still allowed, or Unlimited.
type Insert struct {
	Idx       int
	Remaining int
}

// NoOp does nothing; it exists to join or fan out edges.
type NoOp struct{ Idx int }

// HistoryMark requests a timeline checkpoint.
type HistoryMark struct{ Idx int }

func (v Start) Index() int                { return v.Idx }
func (v End) Index() int                  { return v.Idx }
func (v Action) Index() int               { return v.Idx }
func (v SynchronizationStart) Index() int { return v.Idx }
func (v SynchronizationEnd) Index() int   { return v.Idx }
func (v SubSchedule) Index() int          { return v.Idx }
func (v Insert) Index() int               { return v.Idx }
func (v NoOp) Index() int                 { return v.Idx }
func (v HistoryMark) Index() int          { return v.Idx }

func (Start) Kind() Kind                { return KindStart }
func (End) Kind() Kind                  { return KindEnd }
func (Action) Kind() Kind               { return KindAction }
func (SynchronizationStart) Kind() Kind { return KindSynchronizationStart }
func (SynchronizationEnd) Kind() Kind   { return KindSynchronizationEnd }
func (SubSchedule) Kind() Kind          { return KindSubSchedule }
func (Insert) Kind() Kind               { return KindInsert }
func (NoOp) Kind() Kind                 { return KindNoOp }
func (HistoryMark) Kind() Kind          { return KindHistoryMark }

func (Start) vertexNode()                {}
func (End) vertexNode()                  {}
func (Action) vertexNode()               {}
func (SynchronizationStart) vertexNode() {}
func (SynchronizationEnd) vertexNode()   {}
func (SubSchedule) vertexNode()          {}
func (Insert) vertexNode()               {}
func (NoOp) vertexNode()                 {}
func (HistoryMark) vertexNode()          {}

// describe returns the canonical map form of v used for fingerprints and
// compiled output.
func describe(v Vertex) map[string]any {
	m := map[string]any{
		"index": v.Index(),
		"kind":  v.Kind().String(),
	}
	switch v := v.(type) {
	case Action:
		m["action"] = string(v.Action)
	case SynchronizationStart:
		m["variables"] = ir.VariableStrings(v.Variables)
	case SynchronizationEnd:
		m["start"] = v.Start
	case SubSchedule:
		m["schedule"] = string(v.Schedule)
	case Insert:
		m["remaining"] = v.Remaining
	}
	return m
}
