package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidate_ValidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cmdsched.cue", "loop: period_ms: 10\nhttp: addr: \":8080\"\n")

	out, err := executeValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration valid")
	assert.Contains(t, out, "10ms, mode teleop")
	assert.Contains(t, out, "http:      :8080")
}

func TestValidate_ValidConfigJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cmdsched.cue", "scheduler: name: \"Arm\"\n")

	out, err := executeValidate(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Config)
	assert.Equal(t, "Arm", resp.Data.Config.Scheduler.Name)
	assert.Equal(t, 20, resp.Data.Config.Loop.PeriodMS)
}

func TestValidate_InvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cmdsched.cue", "loop: period_ms: 0\n")

	out, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "cmdsched.cue")
}

func TestValidate_InvalidConfigJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cmdsched.cue", "log: level: \"loud\"\n")

	out, err := executeValidate(t, "json", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidConfig, resp.Error.Code)
}

func TestValidate_Robot(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "cmdsched.cue", "")
	good := writeFile(t, dir, "good.yaml", "subsystems:\n  - name: arm\ncommands:\n  - name: hold\n    requires: [arm]\n")
	bad := writeFile(t, dir, "bad.yaml", "commands:\n  - name: hold\n    requires: [arm]\n")

	_, err := executeValidate(t, "text", cfg, "--robot", good)
	require.NoError(t, err)

	out, err := executeValidate(t, "text", cfg, "--robot", bad)
	require.Error(t, err)
	assert.Contains(t, out, "bad.yaml")
	assert.Contains(t, out, `unknown subsystem "arm"`)
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "config file not found")
}
