package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/store"
)

const demoRobot = `
subsystems:
  - name: arm
    default: arm-hold
commands:
  - name: arm-hold
    requires: [arm]
`

func executeRun(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRun_RecordsSession(t *testing.T) {
	dir := t.TempDir()
	robot := writeFile(t, dir, "robot.yaml", demoRobot)
	cfg := writeFile(t, dir, "cmdsched.cue", "loop: period_ms: 5\n")
	dbPath := filepath.Join(dir, "runs.db")

	out, logs, err := executeRun(t, "text", robot, "--config", cfg, "--db", dbPath, "--ticks", "3", "--label", "demo")
	require.NoError(t, err, logs)
	assert.Contains(t, out, "Ran 3 ticks")
	assert.Contains(t, out, "Session: ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "demo", sessions[0].Label)
	assert.Equal(t, "Scheduler", sessions[0].Scheduler)

	// Tick 1 stages the default, tick 2 admits it.
	events, err := st.ReadEvents(ctx, sessions[0].ID, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, scheduler.EventAdmitted, events[0].Kind)
	assert.Equal(t, "arm-hold", events[0].Command)
	assert.Equal(t, int64(2), events[0].Tick)
}

func TestRun_JSONSummary(t *testing.T) {
	dir := t.TempDir()
	robot := writeFile(t, dir, "robot.yaml", demoRobot)

	out, logs, err := executeRun(t, "json", robot, "--ticks", "2")
	require.NoError(t, err, logs)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Ticks)
	assert.Empty(t, resp.Data.Session)
}

func TestRun_DisabledModeRunsNothing(t *testing.T) {
	dir := t.TempDir()
	robot := writeFile(t, dir, "robot.yaml", demoRobot)
	dbPath := filepath.Join(dir, "runs.db")

	_, logs, err := executeRun(t, "text", robot, "--mode", "disabled", "--db", dbPath, "--ticks", "3")
	require.NoError(t, err, logs)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	sess, err := st.LatestSession(context.Background())
	require.NoError(t, err)
	events, err := st.ReadEvents(context.Background(), sess.ID, store.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRun_SchedulerLogsTaggedOnce(t *testing.T) {
	dir := t.TempDir()
	robot := writeFile(t, dir, "robot.yaml", demoRobot)

	errOut := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{robot, "--ticks", "3"})
	require.NoError(t, cmd.Execute(), errOut.String())

	var schedulerLines int
	for _, line := range strings.Split(errOut.String(), "\n") {
		n := strings.Count(line, "component=scheduler")
		assert.LessOrEqual(t, n, 1, line)
		schedulerLines += n
	}
	assert.Positive(t, schedulerLines, "debug run logs scheduler events")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	robot := writeFile(t, dir, "robot.yaml", demoRobot)
	badRobot := writeFile(t, dir, "bad.yaml", "subsystems:\n  - name: arm\n    default: ghost\n")
	badConfig := writeFile(t, dir, "bad.cue", "loop: period_ms: 0\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing robot", args: []string{filepath.Join(dir, "none.yaml")}, wantErr: "failed to load robot"},
		{name: "invalid robot", args: []string{badRobot}, wantErr: "failed to load robot"},
		{name: "invalid config", args: []string{robot, "--config", badConfig}, wantErr: "invalid configuration"},
		{name: "invalid mode", args: []string{robot, "--mode", "sleepy"}, wantErr: `unknown mode "sleepy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeRun(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveConfig_FlagsOverride(t *testing.T) {
	opts := &RunOptions{
		RootOptions: &RootOptions{Verbose: true},
		Database:    "x.db",
		Addr:        ":9000",
		Mode:        "autonomous",
	}
	cfg, err := resolveConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, "x.db", cfg.Store.Path)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "autonomous", cfg.Loop.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 256, cfg.Store.BufferSize)
}
