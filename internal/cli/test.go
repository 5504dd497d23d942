package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run YAML scenarios against the definitions they name.

Each scenario executes one schedule on fresh registries and checks the
recorded runs against its expectations and assertions. When
golden/<name>.golden exists next to the scenarios, the canonical trace
must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  sequencer test ./scenarios
  sequencer test ./scenarios --filter "release*"
  sequencer test ./scenarios --update
  sequencer test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := opts.formatter(cmd)
	if len(scenarioFiles) == 0 {
		if formatter.JSON() {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	logger := opts.newLogger(io.Discard)
	if opts.Verbose {
		logger = opts.newLogger(formatter.GetErrWriter())
	}

	for _, file := range scenarioFiles {
		res := runScenario(cmd.Context(), file, opts, logger)
		if !formatter.JSON() {
			printScenario(formatter.Writer, res)
		}
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles finds all YAML scenario files in a directory.
// Subdirectories are not searched; golden/ lives next to the scenarios.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, file string, opts *TestOptions, logger *slog.Logger) ScenarioResult {
	if ctx == nil {
		ctx = context.Background()
	}
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(ctx, scenario, harness.Options{Logger: logger})
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("failed to snapshot trace: %v", err)},
		}
	}

	goldenPath := goldenFilePath(file)
	if opts.Update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			return ScenarioResult{
				Name:   scenario.Name,
				Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)},
			}
		}
	} else if golden, err := os.ReadFile(goldenPath); err == nil && !bytes.Equal(golden, snapshot) {
		result.AddError("trace does not match golden file (run with --update to regenerate)")
	}

	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func printScenario(w io.Writer, res ScenarioResult) {
	if res.Pass {
		fmt.Fprintf(w, "✓ %s\n", res.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure("E_TEST_FAILED", msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
