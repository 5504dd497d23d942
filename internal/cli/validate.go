package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Schedules int                        `json:"schedules"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Check workflow definitions without installing them",
		Long: `Check CUE workflow definitions without installing them.

Reports every dangling reference, malformed graph and schedule reference
cycle in one pass. Faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadDefinitions(dir)
	if err != nil {
		return validateLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	for _, s := range loaded.Definition.Schedules {
		formatter.VerboseLog("Validating schedule: %s", s.Name)
	}

	errs := compiler.Validate(loaded.Definition)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	return outputValidateSuccess(formatter, len(loaded.Definition.Schedules))
}

// validateLoadError reports a load failure. Shape errors inside the
// definitions count as validation failures; missing paths are command
// errors.
func validateLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	switch loadErr.Code {
	case ErrCodeShape, ErrCodeBuildFailed, ErrCodeNoSchedules:
		return outputValidationErrors(formatter, []compiler.ValidationError{{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    loadErr.Line(),
		}})
	}
	return formatter.fail(ExitCommandError, loadErr)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, schedules int) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Schedules: schedules})
	}

	fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d schedule(s))\n", schedules)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failed
}
