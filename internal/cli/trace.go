package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Session   string // optional - defaults to the latest session
	Command   string // optional - filter to one command
	Kind      string // optional - filter to one event kind
	Snapshots bool   // include telemetry snapshots
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session   store.Session        `json:"session"`
	Events    []scheduler.Event    `json:"events"`
	Snapshots []scheduler.Snapshot `json:"snapshots,omitempty"`
	Stats     TraceStats           `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	Commands    int            `json:"commands"`
	LastTick    int64          `json:"last_tick"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the lifecycle events of a recorded session",
		Long: `Print the lifecycle events recorded for a scheduler session.

Events are listed in the order the scheduler produced them. Without
--session the most recent session is used.

Examples:
  cmdsched trace --db ./runs.db
  cmdsched trace --db ./runs.db --command arm-raise
  cmdsched trace --db ./runs.db --session 0190f3c2-... --kind preempted
  cmdsched trace --db ./runs.db --snapshots --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (defaults to the latest)")
	cmd.Flags().StringVar(&opts.Command, "command", "", "filter to one command name")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().BoolVar(&opts.Snapshots, "snapshots", false, "include telemetry snapshots")

	return cmd
}

// openExisting opens a database that must already exist. store.Open would
// silently create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var sess store.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return WrapExitError(ExitCommandError, "no such session", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	events, err := st.ReadEvents(ctx, sess.ID, store.EventFilter{
		Command: opts.Command,
		Kind:    scheduler.EventKind(opts.Kind),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{Session: sess, Events: events, Stats: buildTraceStats(events)}

	if opts.Snapshots {
		result.Snapshots, err = readSnapshots(ctx, st, sess.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read snapshots", err)
		}
	}

	return formatterFor(opts.RootOptions, cmd).Success(result, func(w io.Writer) error {
		return outputTraceText(w, result)
	})
}

func readSnapshots(ctx context.Context, st *store.Store, sessionID string) ([]scheduler.Snapshot, error) {
	stored, err := st.ReadSnapshots(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snaps := make([]scheduler.Snapshot, 0, len(stored))
	for _, s := range stored {
		snap, err := s.Decode()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func buildTraceStats(events []scheduler.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events), ByKind: make(map[string]int)}
	commands := make(map[int64]bool)
	for _, ev := range events {
		stats.ByKind[string(ev.Kind)]++
		if ev.CommandID != 0 {
			commands[ev.CommandID] = true
		}
		stats.LastTick = max(stats.LastTick, ev.Tick)
	}
	stats.Commands = len(commands)
	return stats
}

// outputTraceText prints the event table, optional snapshots and stats.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Session %s (%s, %s)\n", result.Session.ID, result.Session.Label, result.Session.Scheduler)
	fmt.Fprintf(w, "Started %s\n\n", result.Session.StartedAt.Format("2006-01-02 15:04:05.000 MST"))

	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
	} else {
		rows := make([][]string, 0, len(result.Events))
		for _, ev := range result.Events {
			id := ""
			if ev.CommandID != 0 {
				id = strconv.FormatInt(ev.CommandID, 10)
			}
			rows = append(rows, []string{
				strconv.FormatInt(ev.Seq, 10),
				strconv.FormatInt(ev.Tick, 10),
				string(ev.Kind),
				id,
				ev.Command,
				ev.Subsystem,
				ev.Detail,
			})
		}
		if err := writeTable(w, []string{"SEQ", "TICK", "KIND", "ID", "COMMAND", "SUBSYSTEM", "DETAIL"}, rows); err != nil {
			return err
		}
	}

	if len(result.Snapshots) > 0 {
		fmt.Fprintln(w, "\nSnapshots:")
		for _, snap := range result.Snapshots {
			names := make([]string, 0, len(snap.Commands))
			for _, c := range snap.Commands {
				names = append(names, fmt.Sprintf("%s#%d", c.Name, c.ID))
			}
			fmt.Fprintf(w, "  tick %d: %v\n", snap.Tick, names)
		}
	}

	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintf(w, "\n%d events, %d commands, last tick %d\n",
		result.Stats.TotalEvents, result.Stats.Commands, result.Stats.LastTick)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-16s %d\n", k, result.Stats.ByKind[k])
	}
	return nil
}
