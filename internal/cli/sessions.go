package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database string
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded scheduler sessions",
		Long: `List the scheduler sessions recorded in a database, oldest first.

Examples:
  cmdsched sessions --db ./runs.db
  cmdsched sessions --db ./runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	return formatterFor(opts.RootOptions, cmd).Success(sessions, func(w io.Writer) error {
		if len(sessions) == 0 {
			_, err := io.WriteString(w, "No sessions recorded.\n")
			return err
		}
		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, []string{s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Scheduler, s.Label})
		}
		return writeTable(w, []string{"ID", "STARTED", "SCHEDULER", "LABEL"}, rows)
	})
}
