package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Scheduler", cfg.Scheduler.Name)
	assert.Equal(t, 20, cfg.Loop.PeriodMS)
	assert.Equal(t, 20*time.Millisecond, cfg.Loop.Period())
	assert.Equal(t, "teleop", cfg.Loop.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.HTTP.Addr)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, 256, cfg.Store.BufferSize)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse("robot.cue", []byte(`
scheduler: name: "practice-bot"
loop: period_ms: 10
log: {
	level:  "debug"
	format: "json"
}
http: addr: ":8080"
store: path: "runs.db"
`))
	require.NoError(t, err)

	assert.Equal(t, "practice-bot", cfg.Scheduler.Name)
	assert.Equal(t, 10*time.Millisecond, cfg.Loop.Period())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "runs.db", cfg.Store.Path)
	assert.Equal(t, 256, cfg.Store.BufferSize, "unset fields keep their default")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"period out of range", `loop: period_ms: 5000`},
		{"period zero", `loop: period_ms: 0`},
		{"unknown level", `log: level: "trace"`},
		{"unknown mode", `loop: mode: "practice"`},
		{"unknown field", `loop: jitter_ms: 3`},
		{"unknown section", `telemetry: {}`},
		{"wrong type", `http: addr: 8080`},
		{"syntax", `loop: {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("robot.cue", []byte(tt.src))
			require.Error(t, err)

			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr), "want *config.Error, got %T", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "robot.cue")
	require.NoError(t, os.WriteFile(path, []byte(`loop: period_ms: 50`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Loop.PeriodMS)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestError_Error(t *testing.T) {
	err := &Error{Field: "loop.period_ms", Message: "out of bounds"}
	assert.Equal(t, "loop.period_ms: out of bounds", err.Error())
}
