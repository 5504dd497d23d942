package harness

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	res, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	return res
}

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			res, err := Run(context.Background(), s, Options{})
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestRun_ReleaseRuns(t *testing.T) {
	res := runScenario(t, "testdata/scenarios/release.yaml")
	require.True(t, res.Pass, "errors: %v", res.Errors)

	root, ok := res.Root()
	require.True(t, ok)
	assert.Equal(t, "run-1", root.RunID)
	assert.Equal(t, []string{"checkpoint"}, root.Marks)

	children := res.RunsOf("verify")
	require.Len(t, children, 2)
	for _, c := range children {
		assert.Equal(t, "run-1", c.ParentID)
		assert.Equal(t, []string{"start", "check", "end"}, c.Labels())
	}
}

func TestRun_FailureRecordsVisitError(t *testing.T) {
	res := runScenario(t, "testdata/scenarios/failure.yaml")
	require.True(t, res.Pass, "errors: %v", res.Errors)

	root, _ := res.Root()
	last := root.Visits[len(root.Visits)-1]
	assert.Equal(t, "boom", last.Label)
	assert.Equal(t, "failed", last.State)
	assert.Contains(t, last.Error, "disk full")
}

func TestRun_ExpectationFailureReported(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/failure.yaml")
	require.NoError(t, err)
	s.Expect.State = "completed"

	res, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Assertion failed: state")
}

func TestRun_UnknownCancelAtVertex(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/cancel.yaml")
	require.NoError(t, err)
	s.CancelAt = "nowhere"

	_, err = Run(context.Background(), s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cancel_at vertex "nowhere" is not in schedule "steps"`)
}

func TestRun_UnknownSchedule(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/release.yaml")
	require.NoError(t, err)
	s.Schedule = "deploy"

	_, err = Run(context.Background(), s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "deploy" is not defined`)
}

func TestRun_LoggerReceivesScriptOutput(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/release.yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	_, err = Run(context.Background(), s, Options{Logger: logger})
	require.NoError(t, err)
}
