package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sequencer/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is loaded from the environment before any subcommand runs.
	// Subcommands built without a root fall back to defaults.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sequencer CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sequencer",
		Short: "sequencer - schedule graph execution engine",
		Long: `Compile CUE workflow definitions into schedule graphs and run them.

Settings are read from SEQUENCER_* environment variables; flags win.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// config returns the loaded configuration, or the defaults.
func (o *RootOptions) config() *config.Config {
	if o.Config != nil {
		return o.Config
	}
	cfg, err := config.LoadFrom(map[string]string{})
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	o.Config = cfg
	return cfg
}

// newLogger builds the diagnostic logger. --verbose forces debug level.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	cfg := o.config()
	hopts := &slog.HandlerOptions{Level: cfg.Level()}
	if o.Verbose {
		hopts.Level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
