package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E005", "not found", map[string]string{"path": "x"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Failure("E120", "bad", []string{"a", "b"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E120", resp.Error.Code)
	assert.Len(t, resp.Data, 2)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("E001", "boom", "context"))
	assert.Equal(t, "Error [E001]: boom\nDetails: context\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, diag.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", diag.String())
	assert.Empty(t, out.String(), "verbose output must not corrupt JSON")
}

func TestOutputFormatter_GetErrWriterFallback(t *testing.T) {
	out := &bytes.Buffer{}
	formatter := &OutputFormatter{Writer: out}
	assert.Same(t, out, formatter.GetErrWriter())
}

func TestExitError(t *testing.T) {
	base := errors.New("disk")
	err := WrapExitError(ExitCommandError, "open failed", base)

	assert.Equal(t, "open failed: disk", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "msg", NewExitError(ExitFailure, "msg").Error())
}
