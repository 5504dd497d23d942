package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/engine"
	"github.com/roach88/sequencer/internal/idgen"
	"github.com/roach88/sequencer/internal/metrics"
	"github.com/roach88/sequencer/internal/remote"
	"github.com/roach88/sequencer/internal/store"
)

// shutdownTimeout bounds the wait for sub-schedules and the remote pool
// once the root run has finished.
const shutdownTimeout = 30 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Schedule  string
	Database  string
	Metrics   string // file to write Prometheus metrics to; "-" is stderr
	Remote    int    // remote pool size; 0 disables remote dispatch
	MaxVisits int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs idgen.Generator
}

// RunSummary is the outcome of a run.
type RunSummary struct {
	RunID    string `json:"run_id"`
	Schedule string `json:"schedule"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Visits   int    `json:"visits"`
	Runs     int    `json:"runs"`
	Database string `json:"database"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	rootOpts := opts.RootOptions

	cmd := &cobra.Command{
		Use:   "run <definitions-dir>",
		Short: "Execute a schedule",
		Long: `Install the definitions in a directory and execute one schedule.

Every run, sub-schedule run and history mark is recorded into a SQLite
database. Ctrl-C cancels the run.

Example:
  sequencer run ./workflows --schedule release --db ./runs.db
  sequencer run ./workflows --schedule release --remote 4 --metrics -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()
			if !cmd.Flags().Changed("db") {
				opts.Database = cfg.DB
			}
			if !cmd.Flags().Changed("remote") {
				opts.Remote = cfg.Engine.RemoteWorkers
			}
			if !cmd.Flags().Changed("max-visits") {
				opts.MaxVisits = cfg.Engine.MaxVisits
			}
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "schedule to execute (required)")
	_ = cmd.MarkFlagRequired("schedule")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default in-memory)")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this file after the run (- for stderr)")
	cmd.Flags().IntVar(&opts.Remote, "remote", 0, "size of the remote worker pool (0 disables)")
	cmd.Flags().IntVar(&opts.MaxVisits, "max-visits", 0, "vertex visits allowed per run (0 is unlimited)")

	return cmd
}

func runSchedule(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	cfg := opts.config()

	loaded, err := LoadDefinitions(dir)
	if err != nil {
		return validateLoadError(formatter, err)
	}
	installed, env, err := installDefinitions(loaded.Definition, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to install definitions", err)
	}
	root, ok := installed.Schedule(opts.Schedule)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("schedule %q is not defined in %s", opts.Schedule, dir))
	}
	logger.Info("definitions installed", "dir", dir, "schedules", len(installed.Order))

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = ":memory:"
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	rec := store.NewRecorder(parentCtx, st, logger)
	async := engine.NewAsyncObserver(rec)
	collector := metrics.NewCollector()
	observer := engine.MultiObserver{engine.LogObserver{Logger: logger}, collector, async}

	// Resume the logical clock after whatever the database already holds so
	// runs from separate invocations never share seqs.
	lastSeq, err := st.LastSeq(parentCtx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = idgen.UUIDv7Generator{}
	}
	shared := []engine.Option{
		engine.WithObserver(observer),
		engine.WithTimeline(store.NewTimeline(st, idgen.UUIDv7Generator{})),
		engine.WithRunIDs(runIDs),
		engine.WithClock(engine.NewClockAt(lastSeq)),
		engine.WithLogger(logger),
		engine.WithMaxVisits(opts.MaxVisits),
	}
	distOpts := append([]engine.Option{engine.WithPreferLocal(cfg.Engine.PreferLocal)}, shared...)

	var pool *remote.PoolDispatcher
	if opts.Remote > 0 {
		pool = remote.NewPoolDispatcher(opts.Remote, env.Schedules, env.Actions, env.Conditions, shared...).WithLogger(logger)
		distOpts = append(distOpts, engine.WithRemote(pool))
	}
	d := engine.NewDistributor(env.Schedules, env.Actions, env.Conditions, distOpts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, stop := context.WithCancel(parentCtx)
	defer stop()
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, canceling runs", "signal", sig)
			d.CancelAll()
		case <-ctx.Done():
		}
	}()

	// The root always runs here; the preference applies to sub-schedules.
	ex, err := d.ExecuteWith(ctx, root, nil, nil, true)
	if err != nil {
		async.Close()
		return WrapExitError(ExitFailure, "failed to start run", err)
	}
	state, runErr := ex.Wait(context.Background())

	drain, cancelDrain := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelDrain()
	if err := d.Wait(drain); err != nil {
		d.CancelAll()
		logger.Warn("sub-schedules still running at shutdown", "error", err)
	}
	if pool != nil {
		if err := pool.Close(drain); err != nil {
			logger.Warn("remote pool did not drain", "error", err)
		}
	}
	async.Close()
	if err := rec.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to record runs", err)
	}

	if opts.Metrics != "" {
		if err := writeMetrics(collector, opts.Metrics, cmd); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	summary := RunSummary{
		RunID:    ex.RunID(),
		Schedule: opts.Schedule,
		State:    state.String(),
		Runs:     len(runs),
		Database: dbPath,
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	for _, r := range runs {
		if r.ID == ex.RunID() {
			summary.Visits = r.Visits
		}
	}

	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	if summary.State != "completed" {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s %s", summary.RunID, summary.State))
	}
	return nil
}

func writeMetrics(c *metrics.Collector, path string, cmd *cobra.Command) error {
	if path == "-" {
		return c.WriteText(cmd.ErrOrStderr())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary) error {
	if formatter.JSON() {
		return formatter.Success(s)
	}

	w := formatter.Writer
	mark := "✓"
	if s.State != "completed" {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s %s (run %s)\n", mark, s.Schedule, s.State, s.RunID)
	if s.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", s.Error)
	}
	fmt.Fprintf(w, "  Visits: %d\n", s.Visits)
	fmt.Fprintf(w, "  Runs recorded: %d in %s\n", s.Runs, s.Database)
	return nil
}
