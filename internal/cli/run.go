package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/datalogger/internal/compiler"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/session"
	"github.com/roach88/datalogger/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Realtime bool
	Timeout  time.Duration

	// IDs overrides the capture ID generator (for testing).
	// If nil, the store's UUIDv7 generator is used.
	IDs store.IDGenerator
}

// RunResult summarizes an archived capture.
type RunResult struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Plan     string `json:"plan"`
	PlanHash string `json:"plan_hash"`
	Mode     string `json:"mode"`
	State    string `json:"state"`
	Overrun  bool   `json:"overrun"`
	Ticks    uint64 `json:"ticks"`
	Bytes    int    `json:"bytes"`
	Digest   string `json:"data_digest"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plan.cue>",
		Short: "Run a capture plan and archive the result",
		Long: `Run one capture plan against a fresh engine and store the result.

By default the sample and state-machine loops run back to back, which is
deterministic and finishes as fast as the host allows. With --realtime
both loops run on tickers at the plan's time base. Interrupting the
command stops the capture; the samples taken so far are still flushed
and archived.

Examples:
  datalogger run --db ./captures.db ./plans/bench.cue
  datalogger run --db ./captures.db --realtime --timeout 10s ./plans/flash.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "sample on a wall-clock ticker at the plan's time base")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "stop the capture after this long (0 = no limit)")

	return cmd
}

func runCapture(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	plan, err := compiler.CompileFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), compileDetails(err))
		return WrapExitError(ExitCommandError, "failed to compile plan", err)
	}
	if errs := compiler.ValidatePlan(plan); len(errs) > 0 {
		return outputValidationErrors(formatter, plan, errs)
	}

	logger.Info("opening database", "path", opts.Database)
	var storeOpts []store.Option
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	sess, err := session.New(plan, session.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to lay out capture", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logger.Info("capture starting", "plan", plan.Name, "mode", plan.Mode, "realtime", opts.Realtime)
	var runErr error
	if opts.Realtime {
		runErr = sess.Run(ctx)
	} else {
		runErr = sess.RunSync(ctx)
	}
	if runErr != nil {
		logger.Error("capture failed", "plan", plan.Name, "error", runErr)
	}

	capture, err := sess.Capture()
	if err != nil {
		if runErr != nil {
			return formatter.Fail(ExitFailure, "capture failed", runErr)
		}
		return formatter.Fail(ExitFailure, "failed to read capture", err)
	}

	saved, err := st.WriteCapture(context.Background(), capture)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to archive capture", err)
	}
	logger.Info("capture archived", "id", saved.ID, "seq", saved.Seq, "bytes", len(saved.Data))

	if runErr != nil {
		return formatter.Fail(ExitFailure, fmt.Sprintf("capture %s failed", saved.ID), runErr)
	}
	return outputRunResult(formatter, saved)
}

func outputRunResult(formatter *OutputFormatter, c ir.Capture) error {
	result := RunResult{
		ID:       c.ID,
		Seq:      c.Seq,
		Plan:     c.PlanName,
		PlanHash: c.PlanHash,
		Mode:     c.Mode,
		State:    c.FinalState,
		Overrun:  c.Overrun,
		Ticks:    c.Ticks,
		Bytes:    len(c.Data),
		Digest:   c.DataDigest,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Capture %s (#%d) of plan %q\n", result.ID, result.Seq, result.Plan)
	fmt.Fprintf(w, "  mode %s, state %s, %d tick(s), %d byte(s)\n", result.Mode, result.State, result.Ticks, result.Bytes)
	if result.Overrun {
		fmt.Fprintln(w, "  overrun: a buffer filled before it was drained")
	}
	return nil
}
