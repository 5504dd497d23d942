package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/sequencer/internal/compiler"
	"github.com/roach88/sequencer/internal/element"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/ir"
	"github.com/roach88/sequencer/internal/schedule"
)

// LoadResult contains a compiled definition directory.
type LoadResult struct {
	Definition *compiler.Definition
	FileCount  int // Number of CUE files found
}

// LoadError represents an error that occurred while loading definitions.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadDefinitions loads and compiles the CUE package in dir.
// Validation is left to the caller.
func LoadDefinitions(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	def, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if len(def.Schedules) == 0 {
		return nil, &LoadError{Code: ErrCodeNoSchedules, Message: "no schedules found in definitions"}
	}
	return &LoadResult{Definition: def, FileCount: len(cueFiles)}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
// Definition validation codes (E120+) come from the compiler package.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE value does not unify
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeNoSchedules  = "E008" // Definitions declare no schedule
	ErrCodeShape        = "E101" // Field has the wrong shape or is missing
	ErrCodeInstallError = "E140" // Registration failed after validation
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeBuildFailed
	case "":
		return ErrCodeGeneric
	default:
		return ErrCodeShape
	}
}

// installDefinitions installs def into fresh registries with sequential
// element ids.
func installDefinitions(def *compiler.Definition, logger *slog.Logger) (*compiler.Installed, compiler.Env, error) {
	env := compiler.Env{
		Actions:    element.NewRegistry[ir.ElementID, element.Action](idgen.NewSequence("action")),
		Conditions: element.NewRegistry[ir.ElementID, element.Condition](idgen.NewSequence("condition")),
		Schedules:  element.NewRegistry[ir.ScheduleID, *schedule.Schedule](idgen.NewSequence("schedule")),
		Logger:     logger,
	}
	installed, err := compiler.Install(def, env)
	if err != nil {
		return nil, env, err
	}
	return installed, env, nil
}
