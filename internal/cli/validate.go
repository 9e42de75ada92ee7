package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cmdsched/internal/config"
	"github.com/roach88/cmdsched/internal/scripted"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Robot string // optional robot description to check alongside the config
}

// ValidationIssue is one problem found in a validated file.
type ValidationIssue struct {
	File    string `json:"file"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Config *config.Config    `json:"config,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a scheduler configuration",
		Long: `Validate a CUE configuration file against the scheduler schema.

Reports the first schema violation with its source position, or prints the
effective configuration with defaults filled in. With --robot the robot
description is checked as well.

Examples:
  cmdsched validate cmdsched.cue
  cmdsched validate cmdsched.cue --robot robot.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Robot, "robot", "", "robot description YAML to validate")

	return cmd
}

func runValidate(opts *ValidateOptions, configPath string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	if _, err := os.Stat(configPath); err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("config file not found: %s", configPath), nil)
		return WrapExitError(ExitCommandError, "config file not found", err)
	}

	result := ValidationResult{Valid: true}

	formatter.VerboseLog("Validating config %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		result.Errors = append(result.Errors, configIssue(configPath, err))
	} else {
		result.Config = cfg
	}

	if opts.Robot != "" {
		formatter.VerboseLog("Validating robot %s", opts.Robot)
		if _, err := scripted.LoadRobot(opts.Robot); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{File: opts.Robot, Message: err.Error()})
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}

	return formatter.Success(result, func(w io.Writer) error {
		fmt.Fprintln(w, "✓ Configuration valid")
		fmt.Fprintf(w, "  scheduler: %s\n", cfg.Scheduler.Name)
		fmt.Fprintf(w, "  loop:      %s, mode %s\n", cfg.Loop.Period(), cfg.Loop.Mode)
		fmt.Fprintf(w, "  log:       %s (%s)\n", cfg.Log.Level, cfg.Log.Format)
		if cfg.HTTP.Addr != "" {
			fmt.Fprintf(w, "  http:      %s\n", cfg.HTTP.Addr)
		}
		if cfg.Store.Path != "" {
			fmt.Fprintf(w, "  store:     %s (buffer %d)\n", cfg.Store.Path, cfg.Store.BufferSize)
		}
		return nil
	})
}

// configIssue converts a config load error into an issue, keeping the CUE
// field path and line when available.
func configIssue(path string, err error) ValidationIssue {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		issue := ValidationIssue{File: path, Field: cfgErr.Field, Message: cfgErr.Message}
		if cfgErr.Pos.IsValid() {
			issue.Line = cfgErr.Pos.Line()
		}
		return issue
	}
	return ValidationIssue{File: path, Message: err.Error()}
}

// outputValidationErrors reports every issue. Validation failures exit
// with code 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.IsJSON() {
		if err := formatter.Error(ErrCodeInvalidConfig, result.Errors[0].Message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		loc := issue.File
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", loc, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", loc, issue.Message)
		}
	}
	return exitErr
}
