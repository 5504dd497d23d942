package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceOf(schedule, state string, labels ...string) RunTrace {
	r := RunTrace{Schedule: schedule, State: state, Marks: []string{}}
	for _, l := range labels {
		r.Visits = append(r.Visits, VisitTrace{Label: l, Kind: "noop", State: "executing"})
	}
	return r
}

func sampleResult() *Result {
	res := NewResult()
	res.Runs = []RunTrace{
		traceOf("release", "completed", "start", "build", "verify", "build", "end"),
		traceOf("verify", "completed", "start", "check", "end"),
		traceOf("verify", "failed", "start", "end"),
	}
	res.Runs[0].RunID = "run-1"
	res.Runs[2].RunID = "run-3"
	res.Runs[2].Error = "boom"
	return res
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "vertex x in trace",
		Actual:   "not found in trace",
		Trace:    []string{"start", "end"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "  Expected: vertex x in trace\n")
	assert.Contains(t, msg, "  Actual: not found in trace\n")
	assert.Contains(t, msg, "  [1] start\n  [2] end\n")
}

func TestAssertionError_NoTrace(t *testing.T) {
	err := &AssertionError{Type: "state", Expected: "completed", Actual: "failed"}
	assert.NotContains(t, err.Error(), "Full trace")
}

func TestEvaluateExpect_Matches(t *testing.T) {
	marks, runs := 0, 3
	exp := Expect{
		State:       "completed",
		Visits:      []string{"start", "build", "verify", "build", "end"},
		VisitCounts: map[string]int{"build": 2, "missing": 0},
		Marks:       &marks,
		Runs:        &runs,
	}
	assert.Empty(t, EvaluateExpect(sampleResult(), exp))
}

func TestEvaluateExpect_Mismatches(t *testing.T) {
	marks, runs := 1, 1
	exp := Expect{
		State:       "failed",
		Error:       "disk",
		Visits:      []string{"start", "end"},
		VisitCounts: map[string]int{"build": 1},
		Marks:       &marks,
		Runs:        &runs,
	}

	msgs := EvaluateExpect(sampleResult(), exp)
	require.Len(t, msgs, 6)
	assert.Contains(t, msgs[0], "Assertion failed: state")
	assert.Contains(t, msgs[1], `error containing "disk"`)
	assert.Contains(t, msgs[2], "start -> build -> verify -> build -> end")
	assert.Contains(t, msgs[3], "1 visits of build")
	assert.Contains(t, msgs[4], "1 marks")
	assert.Contains(t, msgs[5], "3 runs")
}

func TestEvaluateExpect_NoRuns(t *testing.T) {
	assert.Equal(t, []string{"no runs were recorded"}, EvaluateExpect(NewResult(), Expect{State: "completed"}))
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"contains", Assertion{Type: AssertTraceContains, Label: "verify"}, ""},
		{"contains missing", Assertion{Type: AssertTraceContains, Label: "deploy"}, "vertex deploy in trace"},
		{"order", Assertion{Type: AssertTraceOrder, Labels: []string{"start", "build", "end"}}, ""},
		{"order reversed", Assertion{Type: AssertTraceOrder, Labels: []string{"verify", "build"}}, "verify (pos 3) should be before build (pos 2)"},
		{"order missing", Assertion{Type: AssertTraceOrder, Labels: []string{"start", "deploy"}}, "missing label: deploy"},
		{"count", Assertion{Type: AssertTraceCount, Label: "build", Count: 2}, ""},
		{"count wrong", Assertion{Type: AssertTraceCount, Label: "build", Count: 1}, "2 occurrences"},
		{"count in every run", Assertion{Type: AssertTraceCount, Schedule: "verify", Label: "check", Count: 1}, "0 occurrences"},
		{"run state", Assertion{Type: AssertRunState, Schedule: "release", State: "completed"}, ""},
		{"run state mixed", Assertion{Type: AssertRunState, Schedule: "verify", State: "completed"}, "run-3 failed (boom)"},
		{"no such schedule", Assertion{Type: AssertTraceContains, Schedule: "deploy", Label: "x"}, "no such run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			if tt.wantErr == "" {
				assert.Empty(t, msgs)
				return
			}
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], tt.wantErr)
		})
	}
}

func TestResult_AddError(t *testing.T) {
	res := NewResult()
	assert.True(t, res.Pass)

	res.AddError("bad")
	assert.False(t, res.Pass)
	assert.Equal(t, []string{"bad"}, res.Errors)
}
