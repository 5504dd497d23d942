package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/compiler"
	"github.com/roach88/sequencer/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// ScheduleSummary describes one installed schedule.
type ScheduleSummary struct {
	Name        string   `json:"name"`
	ID          string   `json:"id"`
	Vertices    int      `json:"vertices"`
	Edges       int      `json:"edges"`
	References  []string `json:"references,omitempty"`
	Fingerprint string   `json:"fingerprint"`
}

// CompilationResult holds the installed schedules in registration order.
type CompilationResult struct {
	Actions    int               `json:"actions"`
	Conditions int               `json:"conditions"`
	Schedules  []ScheduleSummary `json:"schedules"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definitions-dir>",
		Short: "Install definitions and print schedule summaries",
		Long: `Install CUE workflow definitions into schedule graphs.

Prints each schedule's size, the sub-schedules it dispatches and a content
fingerprint. With --output, writes the canonical graphs as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadDefinitions(dir)
	if err != nil {
		return validateLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	if errs := compiler.Validate(loaded.Definition); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	installed, env, err := installDefinitions(loaded.Definition, opts.newLogger(io.Discard))
	if err != nil {
		return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeInstallError, Message: err.Error()})
	}

	names := make(map[ir.ScheduleID]string, len(installed.Schedules))
	for name, id := range installed.Schedules {
		names[id] = name
	}

	result := &CompilationResult{
		Actions:    len(installed.Actions),
		Conditions: len(installed.Conditions),
	}
	graphs := make(map[string]any, len(installed.Order))
	for _, name := range installed.Order {
		id := installed.Schedules[name]
		sched, _ := env.Schedules.Payload(id)
		formatter.VerboseLog("Compiled schedule: %s (%s)", name, id)

		fp, err := sched.Fingerprint()
		if err != nil {
			return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("fingerprint %s: %v", name, err)})
		}
		summary := ScheduleSummary{
			Name:        name,
			ID:          string(id),
			Vertices:    sched.Len(),
			Edges:       len(sched.Edges()),
			Fingerprint: fp,
		}
		for _, ref := range sched.References() {
			summary.References = append(summary.References, names[ref])
		}
		result.Schedules = append(result.Schedules, summary)

		graph := sched.Describe()
		graph["fingerprint"] = fp
		graphs[name] = graph
	}

	if opts.Output != "" {
		if err := writeGraphs(graphs, opts.Output); err != nil {
			return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d schedule(s), %d action(s), %d condition(s)\n\n",
		len(result.Schedules), result.Actions, result.Conditions)

	fmt.Fprintln(w, "Schedules:")
	for _, s := range result.Schedules {
		fmt.Fprintf(w, "  %s: %d vertices, %d edges", s.Name, s.Vertices, s.Edges)
		if len(s.References) > 0 {
			fmt.Fprintf(w, ", dispatches %s", strings.Join(s.References, ", "))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    %s\n", s.Fingerprint)
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical graphs to %s\n", outputFile)
	}
	return nil
}

// writeGraphs writes the schedule graphs to a file in canonical JSON format.
func writeGraphs(graphs map[string]any, filename string) error {
	data, err := ir.MarshalCanonical(map[string]any{"schedules": graphs})
	if err != nil {
		return fmt.Errorf("marshaling graphs: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
