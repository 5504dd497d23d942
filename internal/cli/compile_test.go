package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_TextSummary(t *testing.T) {
	out, err := execute(t, "compile", "testdata/defs")
	require.NoError(t, err)

	assert.Contains(t, out, "Compiled 3 schedule(s), 3 action(s), 0 condition(s)")
	assert.Contains(t, out, "release: 7 vertices, 6 edges, dispatches verify")
	assert.Contains(t, out, "verify: 3 vertices, 2 edges\n")
}

func TestCompile_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", "testdata/defs")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Schedules, 3)

	byName := map[string]ScheduleSummary{}
	for _, s := range resp.Data.Schedules {
		byName[s.Name] = s
		assert.Len(t, s.Fingerprint, 64)
	}
	assert.Equal(t, []string{"verify"}, byName["release"].References)
	assert.NotEqual(t, byName["verify"].Fingerprint, byName["broken"].Fingerprint)

	// Sub-schedules are registered before the schedules that dispatch them.
	var order []string
	for _, s := range resp.Data.Schedules {
		order = append(order, s.Name)
	}
	assert.Less(t, indexOf(order, "verify"), indexOf(order, "release"))
}

func TestCompile_FingerprintStable(t *testing.T) {
	first, err := execute(t, "compile", "testdata/defs")
	require.NoError(t, err)
	second, err := execute(t, "compile", "testdata/defs")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompile_WritesCanonicalGraphs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphs.json")
	out, err := execute(t, "compile", "testdata/defs", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical graphs to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Schedules map[string]struct {
			Fingerprint string           `json:"fingerprint"`
			Vertices    []map[string]any `json:"vertices"`
			Edges       []map[string]any `json:"edges"`
		} `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc.Schedules, "release")
	assert.Len(t, doc.Schedules["release"].Vertices, 7)
	assert.Len(t, doc.Schedules["release"].Edges, 6)
	assert.NotContains(t, string(data), "\n", "canonical JSON has no whitespace")
}

func TestCompile_ValidationErrors(t *testing.T) {
	out, err := execute(t, "compile", "testdata/bad")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E127")
}

func TestCompile_UnwritableOutput(t *testing.T) {
	_, err := execute(t, "compile", "testdata/defs", "--output", "/nonexistent/dir/out.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeWriteFailed)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
