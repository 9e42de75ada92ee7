// Package config loads the runtime configuration of the scheduler host
// from a CUE file.
//
// The file is unified with an embedded schema (#Config) that supplies
// defaults, enumerations and bounds, so an empty file is a valid
// configuration. Unknown fields are rejected because #Config is closed.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the decoded runtime configuration.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Loop      LoopConfig      `json:"loop"`
	Log       LogConfig       `json:"log"`
	HTTP      HTTPConfig      `json:"http"`
	Store     StoreConfig     `json:"store"`
}

// SchedulerConfig names the scheduler instance.
type SchedulerConfig struct {
	Name string `json:"name"`
}

// LoopConfig configures the host control loop.
type LoopConfig struct {
	PeriodMS int    `json:"period_ms"`
	Mode     string `json:"mode"`
}

// Period returns the control cycle period.
func (l LoopConfig) Period() time.Duration {
	return time.Duration(l.PeriodMS) * time.Millisecond
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// HTTPConfig configures the telemetry server.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// StoreConfig configures the SQLite event recorder.
type StoreConfig struct {
	Path       string `json:"path"`
	BufferSize int    `json:"buffer_size"`
}

// Error is a configuration error with its CUE source position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration an empty file produces.
func Default() Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return *cfg
}

// Load reads and validates the CUE file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates CUE source against the schema and decodes it. filename
// is used only for error positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	return &cfg, nil
}

// formatCUEError converts the first CUE error into an *Error carrying its
// field path and position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := strings.Join(cueerrors.Path(first), ".")
	if field == "" {
		field = "cue"
	}
	format, args := first.Msg()
	out := &Error{Field: field, Message: fmt.Sprintf(format, args...)}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
