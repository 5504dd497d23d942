package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/release.yaml",
		"testdata/scenarios/cancel.yaml",
	} {
		s, err := LoadScenario(path)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			res, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
		})
	}
}

func TestSnapshot_OmitsEmptyOptionalFields(t *testing.T) {
	res := NewResult()
	res.Runs = []RunTrace{{
		RunID:    "run-1",
		Schedule: "s",
		State:    "completed",
		Visits:   []VisitTrace{{Label: "start", Kind: "start", State: "executing"}},
	}}

	got, err := Snapshot("x", res)
	require.NoError(t, err)
	assert.Equal(t,
		`{"runs":[{"marks":[],"run_id":"run-1","schedule":"s","state":"completed","visits":[{"kind":"start","label":"start","state":"executing"}]}],"scenario_name":"x"}`,
		string(got))
}
