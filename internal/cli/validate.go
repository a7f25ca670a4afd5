package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/datalogger/internal/compiler"
	"github.com/roach88/datalogger/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Plan   string                     `json:"plan,omitempty"`
	Hash   string                     `json:"hash,omitempty"`
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan.cue>",
		Short: "Check a capture plan without running it",
		Long: `Compile a CUE capture plan against the plan schema and check the
rules the schema cannot express: slot range, duplicate slots and
variables, undeclared variables, zero dividers or record lengths, and a
medium for mem mode.

Exit codes:
  0 - Plan is valid
  1 - Plan has validation errors
  2 - Plan could not be read or compiled`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	plan, err := compiler.CompileFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), compileDetails(err))
		return WrapExitError(ExitCommandError, "failed to compile plan", err)
	}
	formatter.VerboseLog("Compiled plan %q: %d variable(s), %d channel(s)", plan.Name, len(plan.Variables), len(plan.Channels))

	if errs := compiler.ValidatePlan(plan); len(errs) > 0 {
		return outputValidationErrors(formatter, plan, errs)
	}

	hash, err := ir.PlanHash(plan)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash plan", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Plan: plan.Name, Hash: hash, Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ Plan %q valid (%s)\n", plan.Name, hash)
	return nil
}

// compileDetails exposes the source position of a compile error, if any.
func compileDetails(err error) any {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) || !ce.Pos.IsValid() {
		return nil
	}
	return map[string]any{
		"file":   ce.Pos.Filename(),
		"line":   ce.Pos.Line(),
		"column": ce.Pos.Column(),
		"field":  ce.Field,
	}
}

func outputValidationErrors(formatter *OutputFormatter, plan *ir.CapturePlan, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Plan: plan.Name, Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "✗ Plan %q invalid\n\n", plan.Name)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return failure
}
