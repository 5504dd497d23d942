package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/release.yaml")
	require.NoError(t, err)

	assert.Equal(t, "release", s.Name)
	assert.Equal(t, "release", s.Schedule)
	assert.Equal(t, []string{filepath.Join("testdata", "defs", "pipeline")}, s.Definitions)
	assert.Equal(t, "completed", s.Expect.State)
	assert.Equal(t, 2, s.Expect.VisitCounts["compile"])
	require.NotNil(t, s.Expect.Marks)
	assert.Equal(t, 1, *s.Expect.Marks)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertTraceOrder, s.Assertions[0].Type)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	_, err := LoadScenario("testdata/invalid/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expct")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AbsoluteSpecKept(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs("testdata/defs/pipeline")
	require.NoError(t, err)
	path := writeScenario(t, dir, "abs.yaml", `
name: abs
description: "absolute definitions path"
definitions:
  - `+abs+`
schedule: steps
expect:
  state: completed
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, s.Definitions)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "d"
definitions: [x]
schedule: s
expect: {state: completed}
`,
			wantErr: "name is required",
		},
		{
			name: "missing schedule",
			content: `
name: n
description: "d"
definitions: [x]
expect: {state: completed}
`,
			wantErr: "schedule",
		},
		{
			name: "non-final state",
			content: `
name: n
description: "d"
definitions: [x]
schedule: s
expect: {state: executing}
`,
			wantErr: "executing",
		},
		{
			name: "unknown state name",
			content: `
name: n
description: "d"
definitions: [x]
schedule: s
expect: {state: done}
`,
			wantErr: `got "done"`,
		},
		{
			name: "run_state with non-final state",
			content: `
name: n
description: "d"
definitions: [x]
schedule: s
expect: {state: completed}
assertions:
  - type: run_state
    schedule: s
    state: idle
`,
			wantErr: "assertions[0]: state must be completed, failed or canceled",
		},
		{
			name: "unknown assertion",
			content: `
name: n
description: "d"
definitions: [x]
schedule: s
expect: {state: completed}
assertions:
  - type: trace_sorted
    label: a
`,
			wantErr: "trace_sorted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.Mkdir(filepath.Join(dir, "x"), 0755))
			path := writeScenario(t, dir, "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedByName(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"cancel", "failure", "fire_and_continue", "quota", "release"}, names)
}

func TestLoadScenarios_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("none"), 0644))

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}
