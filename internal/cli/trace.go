package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/execution"
	"github.com/roach88/sequencer/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - show one run in detail
	State    string // run list filter
	Schedule string // run list filter, by schedule name
}

// TraceResult holds the recorded history of one run.
type TraceResult struct {
	Run      store.Run           `json:"run"`
	Visits   []store.VisitRecord `json:"visits"`
	Marks    []store.MarkRecord  `json:"marks"`
	Children []store.Run         `json:"children"`
}

// RunList holds every recorded run.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs",
		Long: `Show the runs recorded in a database.

Without --run, lists every run in start order. With --run, shows the
run's visits in logical-clock order, its history marks and the
sub-schedule runs it dispatched. --state and --schedule narrow the list.

Examples:
  sequencer trace --db ./runs.db
  sequencer trace --db ./runs.db --state failed --schedule release
  sequencer trace --db ./runs.db --run 0190f7a2-...
  sequencer trace --db ./runs.db --run 0190f7a2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show in detail")
	cmd.Flags().StringVar(&opts.State, "state", "", "list only runs in this state")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "list only runs of this schedule")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	if opts.State != "" {
		if _, ok := execution.ParseState(opts.State); !ok {
			return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("unknown run state: %s", opts.State)})
		}
	}

	// store.Open would create a missing file.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", opts.Database)})
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.FindRuns(ctx, opts.filter())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if formatter.JSON() {
			return formatter.Success(RunList{Runs: runs})
		}
		outputRunList(formatter.Writer, runs)
		return nil
	}

	result, err := readTrace(ctx, st, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("run not found: %s", opts.RunID)})
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func (o *TraceOptions) filter() store.Predicate {
	var and store.And
	if o.State != "" {
		and.Predicates = append(and.Predicates, store.Equals{Column: "state", Value: o.State})
	}
	if o.Schedule != "" {
		and.Predicates = append(and.Predicates, store.Equals{Column: "schedule_name", Value: o.Schedule})
	}
	return and
}

func readTrace(ctx context.Context, st *store.Store, runID string) (TraceResult, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	visits, err := st.ReadVisits(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	marks, err := st.ReadMarks(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	children, err := st.ReadChildren(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	return TraceResult{Run: run, Visits: visits, Marks: marks, Children: children}, nil
}

func outputRunList(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-10s %-12s visits=%d", r.ID, r.State, r.ScheduleName, r.Visits)
		if r.ParentID != "" {
			fmt.Fprintf(w, " parent=%s", truncateID(r.ParentID))
		}
		fmt.Fprintln(w)
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	r := result.Run
	fmt.Fprintf(w, "Trace for Run: %s\n", r.ID)
	fmt.Fprintf(w, "Schedule: %s (%s)\n", r.ScheduleName, r.ScheduleID)
	fmt.Fprintf(w, "Status: %s\n", runStatus(r))
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Visits ===")
	if len(result.Visits) == 0 {
		fmt.Fprintln(w, "  (no visits)")
	}
	for _, v := range result.Visits {
		fmt.Fprintf(w, "  [%d] %s %s", v.Seq, v.Label, v.State)
		if verbose {
			fmt.Fprintf(w, " (%s, vertex %d)", v.Kind, v.Vertex)
		}
		fmt.Fprintln(w)
		if v.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", v.Error)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Marks ===")
	if len(result.Marks) == 0 {
		fmt.Fprintln(w, "  (no history marks)")
	}
	for _, m := range result.Marks {
		fmt.Fprintf(w, "  [%d] %s -> marker %d (%s)\n", m.Seq, m.Label, m.MarkerSeq, truncateID(m.MarkerID))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Sub-schedules ===")
	if len(result.Children) == 0 {
		fmt.Fprintln(w, "  (none dispatched)")
	}
	for _, c := range result.Children {
		where := "local"
		if !c.Local {
			where = "remote"
		}
		fmt.Fprintf(w, "  %s %s %s (%s)\n", truncateID(c.ID), c.ScheduleName, c.State, where)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// runStatus returns a human-readable completion status.
func runStatus(r store.Run) string {
	if r.Finished() {
		return r.State
	}
	return r.State + " (not finished)"
}
