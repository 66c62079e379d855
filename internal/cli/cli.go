// Package cli wires configuration, logging and the pipeline behind a cobra
// command tree. It is the only place that turns errors into exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/backmassage/sfmrunner/internal/check"
	"github.com/backmassage/sfmrunner/internal/colmap"
	"github.com/backmassage/sfmrunner/internal/config"
	"github.com/backmassage/sfmrunner/internal/display"
	"github.com/backmassage/sfmrunner/internal/logging"
	"github.com/backmassage/sfmrunner/internal/pipeline"
	"github.com/backmassage/sfmrunner/internal/term"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries the exit code chosen for a failed command.
type ExitError struct {
	Code int
	Err  error
	// Reported is set when Err has already been logged and must not be
	// printed again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Options holds the process-level dependencies of the command tree.
type Options struct {
	Version string
	Commit  string
	Stdout  io.Writer
	Stderr  io.Writer
	// Executor replaces the child-process executor when set.
	Executor colmap.Executor
}

func (o *Options) setDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Commit == "" {
		o.Commit = "unknown"
	}
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, o Options) int {
	o.setDefaults()
	cmd := NewRootCmd(o)
	cmd.SetArgs(args)
	return exitCode(cmd.ExecuteContext(ctx), o.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if !ee.Reported && ee.Err != nil {
			fmt.Fprintf(stderr, "sfmrunner: %v\n", ee.Err)
		}
		return ee.Code
	}
	// Anything else comes from cobra: unknown flag or command, bad args.
	fmt.Fprintf(stderr, "sfmrunner: %v\n", err)
	return ExitUsage
}

// NewRootCmd builds the root command, which runs the whole pipeline, and
// its subcommands.
func NewRootCmd(o Options) *cobra.Command {
	o.setDefaults()

	cmd := &cobra.Command{
		Use:   "sfmrunner",
		Short: "Run feature extraction, matching, mapping and model conversion on a dataset",
		Long: `sfmrunner drives a structure-from-motion tool over <dataset>/images:
feature extraction, exhaustive matching, sparse reconstruction and model
conversion, stopping at the first failed step.`,
		Version:       fmt.Sprintf("%s (%s)", o.Version, o.Commit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(o.Stdout)
	cmd.SetErr(o.Stderr)

	flags := config.RegisterFlags(cmd.PersistentFlags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd.Context(), flags, o)
	}
	cmd.AddCommand(newCheckCmd(flags, o))
	return cmd
}

func newCheckCmd(flags *config.Flags, o Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the tool installation and the dataset without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(flags, o)
			if err != nil {
				return err
			}
			defer log.Close()

			display.PrintBanner(o.Stdout)
			if !check.RunCheck(cmd.Context(), &cfg, log) {
				return &ExitError{Code: ExitFailure, Reported: true}
			}
			log.Success("All checks passed")
			return nil
		},
	}
}

// setup loads the configuration and opens the logger. Failures here happen
// before any logger exists, so they are printed by Execute.
func setup(flags *config.Flags, o Options) (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return config.Config{}, nil, &ExitError{Code: ExitUsage, Err: err}
	}
	log, err := newLogger(&cfg, o)
	if err != nil {
		return config.Config{}, nil, &ExitError{Code: ExitFailure, Err: fmt.Errorf("open log: %w", err)}
	}
	return cfg, log, nil
}

func newLogger(cfg *config.Config, o Options) (*logging.Logger, error) {
	if o.Stdout == io.Writer(os.Stdout) && o.Stderr == io.Writer(os.Stderr) {
		return logging.NewLogger(cfg)
	}
	f, _ := o.Stdout.(*os.File)
	term.Configure(cfg.ColorMode, f)
	return logging.NewWriterLogger(cfg, o.Stdout, o.Stderr)
}

func runPipeline(ctx context.Context, flags *config.Flags, o Options) error {
	cfg, log, err := setup(flags, o)
	if err != nil {
		return err
	}
	defer log.Close()

	display.PrintBanner(o.Stdout)
	log.Info("=== sfmrunner %s (%s) ===", o.Version, o.Commit)
	log.Info("Dataset: %s", cfg.DatasetRoot)
	log.Info("Format:  %s", cfg.OutputFormat)
	log.Info("Tool:    %s", cfg.ToolExecutable)
	if cfg.ConfigFile != "" {
		log.Info("Config:  %s", cfg.ConfigFile)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: nothing will be executed")
	}
	log.Blank()

	// A dry run only prints commands, so a missing tool is not fatal there.
	if err := check.CheckDeps(&cfg); err != nil {
		if !cfg.DryRun {
			log.Error("%v", err)
			return &ExitError{Code: ExitFailure, Err: err, Reported: true}
		}
		log.Warn("%v", err)
	}

	ctx = logging.WithContext(ctx, log.Structured())
	stats, err := pipeline.New(cfg, executor(cfg, o), log).Run(ctx)
	if err != nil {
		log.Error("Pipeline failed after %s: %v", display.FormatDuration(stats.Total), err)
		return &ExitError{Code: ExitFailure, Err: err, Reported: true}
	}
	return nil
}

func executor(cfg config.Config, o Options) colmap.Executor {
	if o.Executor != nil {
		return o.Executor
	}
	if !cfg.TeeToolOutput {
		return colmap.NewProcessExecutor(nil, nil)
	}
	return colmap.NewProcessExecutor(o.Stdout, o.Stderr)
}
