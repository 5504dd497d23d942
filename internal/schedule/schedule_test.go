package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sequencer/internal/ir"
)

// linear builds Start(0) -> Action(2) -> Action(3) -> End(1).
func linear(t *testing.T) *Schedule {
	t.Helper()
	s, err := New(
		[]Vertex{Start{Idx: 0}, End{Idx: 1}, Action{Idx: 2, Action: "a"}, Action{Idx: 3, Action: "b"}},
		[]Edge{{Source: 0, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 1}},
		WithLabels(map[int]string{2: "a", 3: "b"}),
	)
	require.NoError(t, err)
	return s
}

func TestNew_Linear(t *testing.T) {
	s := linear(t)

	assert.Equal(t, 0, s.Start().Index())
	assert.Equal(t, 1, s.End().Index())
	assert.Equal(t, 4, s.Len())
	assert.False(t, s.Partial())

	v, ok := s.Vertex(2)
	require.True(t, ok)
	assert.Equal(t, Action{Idx: 2, Action: "a"}, v)

	assert.Equal(t, []Edge{{Source: 2, Target: 3}}, s.Outbound(2))
	assert.Nil(t, s.Outbound(99))
}

func TestTraverseAllVertices_CycleVisitsOnce(t *testing.T) {
	// Start -> A -> B -> C -> A, plus A -> End.
	s, err := New(
		[]Vertex{Start{Idx: 0}, End{Idx: 1}, NoOp{Idx: 2}, NoOp{Idx: 3}, NoOp{Idx: 4}},
		[]Edge{
			{Source: 0, Target: 2},
			{Source: 2, Target: 3, Condition: "loop"},
			{Source: 2, Target: 1},
			{Source: 3, Target: 4},
			{Source: 4, Target: 2},
		},
	)
	require.NoError(t, err)

	counts := make(map[int]int)
	var edgesOfA []Edge
	s.TraverseAllVertices(0, func(v Vertex, out []Edge) bool {
		counts[v.Index()]++
		if v.Index() == 2 {
			edgesOfA = out
		}
		return true
	})

	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 3: 1, 4: 1}, counts)
	require.Len(t, edgesOfA, 2)
	assert.Equal(t, ir.ElementID("loop"), edgesOfA[0].Condition, "declaration order preserved")
	assert.Equal(t, 1, edgesOfA[1].Target)
}

func TestTraverseAllVertices_StopsEarly(t *testing.T) {
	s := linear(t)
	var visited []int
	s.TraverseAllVertices(0, func(v Vertex, _ []Edge) bool {
		visited = append(visited, v.Index())
		return v.Index() != 2
	})
	assert.Equal(t, []int{0, 2}, visited)
}

func TestTraverseAllVertices_UnknownStart(t *testing.T) {
	s := linear(t)
	called := false
	s.TraverseAllVertices(42, func(Vertex, []Edge) bool { called = true; return true })
	assert.False(t, called)
}

func TestNew_Invalid(t *testing.T) {
	start, end := Start{Idx: 0}, End{Idx: 1}
	tests := []struct {
		name     string
		vertices []Vertex
		edges    []Edge
		opts     []Option
		contains string
	}{
		{
			name:     "missing start",
			vertices: []Vertex{end},
			contains: "missing start",
		},
		{
			name:     "missing end",
			vertices: []Vertex{start, NoOp{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 2, Target: 2}},
			contains: "missing end",
		},
		{
			name:     "two starts",
			vertices: []Vertex{start, end, Start{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 1}, {Source: 2, Target: 1}},
			contains: "more than one start",
		},
		{
			name:     "duplicate index",
			vertices: []Vertex{start, end, NoOp{Idx: 1}},
			contains: "duplicate vertex index",
		},
		{
			name:     "dangling edge",
			vertices: []Vertex{start, end},
			edges:    []Edge{{Source: 0, Target: 7}},
			contains: "does not exist",
		},
		{
			name:     "edge into start",
			vertices: []Vertex{start, end, NoOp{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 2, Target: 0}, {Source: 2, Target: 1}},
			contains: "enters the start",
		},
		{
			name:     "edge out of end",
			vertices: []Vertex{start, end, NoOp{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}, {Source: 2, Target: 1}},
			contains: "leaves the end",
		},
		{
			name:     "unreachable",
			vertices: []Vertex{start, end, NoOp{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 1}, {Source: 2, Target: 1}},
			contains: "not reachable",
		},
		{
			name:     "dead end",
			vertices: []Vertex{start, end, NoOp{Idx: 2}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 0, Target: 1}},
			contains: "no outgoing edge",
		},
		{
			name:     "insert in compiled graph",
			vertices: []Vertex{start, end, Insert{Idx: 2, Remaining: Unlimited}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 2, Target: 1}},
			contains: "insert vertex",
		},
		{
			name:     "sync end without start",
			vertices: []Vertex{start, end, SynchronizationEnd{Idx: 2, Start: 9}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 2, Target: 1}},
			contains: "missing vertex",
		},
		{
			name:     "sync end pointing at action",
			vertices: []Vertex{start, end, Action{Idx: 2, Action: "a"}, SynchronizationEnd{Idx: 3, Start: 2}},
			edges:    []Edge{{Source: 0, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 1}},
			contains: "not a sync start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.vertices, tt.edges, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
			assert.Contains(t, err.Error(), tt.contains)

			var ge *GraphError
			assert.ErrorAs(t, err, &ge)
		})
	}
}

func TestNew_PartialAllowsInsert(t *testing.T) {
	s, err := New(
		[]Vertex{Start{Idx: 0}, End{Idx: 1}, Insert{Idx: 2, Remaining: 2}},
		[]Edge{{Source: 0, Target: 2}, {Source: 2, Target: 1}},
		AllowInserts(),
	)
	require.NoError(t, err)
	assert.True(t, s.Partial())
}

func TestLabel(t *testing.T) {
	s := linear(t)
	assert.Equal(t, "a", s.Label(2))
	assert.Equal(t, "start#0", s.Label(0))
	assert.Equal(t, "#9", s.Label(9))

	idx, ok := s.IndexOf("b")
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	idx, ok = s.IndexOf("end#1")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestFingerprint(t *testing.T) {
	a, err := linear(t).Fingerprint()
	require.NoError(t, err)
	b, err := linear(t).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := New(
		[]Vertex{Start{Idx: 0}, End{Idx: 1}, Action{Idx: 2, Action: "a"}},
		[]Edge{{Source: 0, Target: 2}, {Source: 2, Target: 1}},
	)
	require.NoError(t, err)
	c, err := other.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestReferences(t *testing.T) {
	s, err := New(
		[]Vertex{Start{Idx: 0}, End{Idx: 1}, SubSchedule{Idx: 2, Schedule: "s-2"}, SubSchedule{Idx: 3, Schedule: "s-2"}, SubSchedule{Idx: 4, Schedule: "s-3"}},
		[]Edge{{Source: 0, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 4}, {Source: 4, Target: 1}},
	)
	require.NoError(t, err)
	assert.Equal(t, []ir.ScheduleID{"s-2", "s-3"}, s.References())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "sync_start", KindSynchronizationStart.String())
	assert.Equal(t, "kind(42)", Kind(42).String())

	k, ok := ParseKind("history_mark")
	require.True(t, ok)
	assert.Equal(t, KindHistoryMark, k)
	_, ok = ParseKind("bogus")
	assert.False(t, ok)
}
