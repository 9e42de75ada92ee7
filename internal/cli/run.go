package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cmdsched/internal/config"
	"github.com/roach88/cmdsched/internal/hostloop"
	"github.com/roach88/cmdsched/internal/httpapi"
	"github.com/roach88/cmdsched/internal/logging"
	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/scripted"
	"github.com/roach88/cmdsched/internal/store"
	"github.com/roach88/cmdsched/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Addr       string
	Mode       string
	Label      string
	Ticks      int64
}

// RunSummary is printed when the control loop stops.
type RunSummary struct {
	Session  string `json:"session,omitempty"`
	Ticks    int64  `json:"ticks"`
	Overruns int64  `json:"overruns"`
	Dropped  int64  `json:"dropped_records,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <robot.yaml>",
		Short: "Run the scheduler in a real-time control loop",
		Long: `Run a scripted robot on the command scheduler.

The control loop calls the scheduler once per period until interrupted or
until --ticks ticks have run. Running commands are served as JSON by the
telemetry server when an address is configured, and every lifecycle event
is recorded to SQLite when a database is configured.

Flags override the values in --config.

Example:
  cmdsched run robot.yaml --config cmdsched.cue
  cmdsched run robot.yaml --db ./runs.db --addr :8080 --ticks 500`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for recording")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "telemetry server listen address")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "initial operating mode (disabled|autonomous|teleop|test)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "session label (defaults to the robot file name)")
	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")

	return cmd
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(opts *RunOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Mode != "" {
		if _, err := hostloop.ParseMode(opts.Mode); err != nil {
			return nil, err
		}
		cfg.Loop.Mode = opts.Mode
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return &cfg, nil
}

func runScheduler(opts *RunOptions, robotPath string, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())

	robot, err := scripted.LoadRobot(robotPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load robot", err)
	}
	mode, err := hostloop.ParseMode(cfg.Loop.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	table := telemetry.NewTable()
	publishers := telemetry.Fanout{table, telemetry.NewLogPublisher(logger)}
	schedOpts := []scheduler.Option{
		scheduler.WithName(cfg.Scheduler.Name),
		scheduler.WithLogger(logger),
		scheduler.WithCancelSource(table),
	}

	summary := RunSummary{}
	var rec *store.Recorder
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		label := opts.Label
		if label == "" {
			label = robotPath
		}
		sess, err := st.CreateSession(ctx, label, cfg.Scheduler.Name, time.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create session", err)
		}
		summary.Session = sess.ID

		rec = store.NewRecorder(st, sess.ID, cfg.Store.BufferSize, logger)
		publishers = append(publishers, rec)
		schedOpts = append(schedOpts, scheduler.WithSink(rec))
		logger.Info("recording session", "session", sess.ID, "db", cfg.Store.Path)
	}
	schedOpts = append(schedOpts, scheduler.WithPublisher(publishers))

	sched := scheduler.New(schedOpts...)
	if _, err := scripted.Build(robot, sched); err != nil {
		if rec != nil {
			_ = rec.Close(ctx)
		}
		return WrapExitError(ExitCommandError, "failed to build robot", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serverDone := make(chan error, 1)
	if cfg.HTTP.Addr != "" {
		go func() {
			serverDone <- httpapi.Serve(ctx, cfg.HTTP.Addr, httpapi.NewServer(table, logger), logger)
		}()
	} else {
		serverDone <- nil
	}

	loop := hostloop.New(sched,
		hostloop.Config{Period: cfg.Loop.Period(), MaxTicks: opts.Ticks},
		logger,
		hostloop.WithMode(mode),
	)

	fmt.Fprintf(cmd.ErrOrStderr(), "Scheduler %q running at %s. Press Ctrl-C to stop.\n", sched.Name(), cfg.Loop.Period())
	loopErr := loop.Start(ctx)
	cancel()

	if err := <-serverDone; err != nil {
		logger.Error("telemetry server error", "error", err)
	}

	summary.Ticks = loop.Ticks()
	summary.Overruns = loop.Overruns()
	if rec != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := rec.Close(closeCtx); err != nil {
			logger.Error("recorder did not flush", "error", err)
		}
		summary.Dropped = rec.Dropped()
	}

	if loopErr != nil && !errors.Is(loopErr, context.Canceled) && !errors.Is(loopErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "control loop error", loopErr)
	}

	logger.Info("scheduler stopped gracefully", "ticks", summary.Ticks)
	return formatterFor(opts.RootOptions, cmd).Success(summary, func(w io.Writer) error {
		fmt.Fprintf(w, "Ran %d ticks (%d overruns)\n", summary.Ticks, summary.Overruns)
		if summary.Session != "" {
			fmt.Fprintf(w, "Session: %s\n", summary.Session)
		}
		if summary.Dropped > 0 {
			fmt.Fprintf(w, "Dropped %d records\n", summary.Dropped)
		}
		return nil
	})
}
