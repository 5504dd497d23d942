package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/defs")
	require.NoError(t, err)
	assert.Contains(t, out, "All definitions valid (3 schedule(s))")
}

func TestValidate_ValidJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/defs")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 3, resp.Data.Schedules)
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/bad")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var codes []string
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, "E127")
	assert.Contains(t, codes, "E128")
}

func TestValidate_ShapeErrorIsValidationFailure(t *testing.T) {
	out, err := execute(t, "validate", "testdata/shape")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, ErrCodeShape)
	assert.Contains(t, out, `unknown vertex kind "bogus"`)
}

func TestValidate_MissingDirectory(t *testing.T) {
	out, err := execute(t, "validate", "testdata/missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidate_NoCUEFiles(t *testing.T) {
	_, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidate_MissingArgs(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
