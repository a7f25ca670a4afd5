package compiler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/datalogger/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// PlanPath is where a plan file declares its plan.
const PlanPath = "plan"

// CompileFile reads a CUE file and compiles the struct at PlanPath.
func CompileFile(path string) (*ir.CapturePlan, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return CompileSource(path, src)
}

// CompileSource compiles CUE source text. name is used in error positions.
func CompileSource(name string, src []byte) (*ir.CapturePlan, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	planVal := v.LookupPath(cue.ParsePath(PlanPath))
	if !planVal.Exists() {
		return nil, &CompileError{
			Field:   PlanPath,
			Message: "plan is required",
			Pos:     v.Pos(),
		}
	}
	return CompilePlan(planVal)
}

// CompilePlan checks a CUE value against the plan schema and decodes it.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the plan struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`plan: { name: "demo", ... }`)
//	plan, err := CompilePlan(v.LookupPath(cue.ParsePath("plan")))
//
// Unknown fields are rejected. Cross-field rules live in ValidatePlan.
func CompilePlan(v cue.Value) (*ir.CapturePlan, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("plan schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Plan"))

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var plan ir.CapturePlan
	if err := dec.Decode(&plan); err != nil {
		return nil, &CompileError{
			Field:   PlanPath,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return &plan, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Report the first error that points into the plan, not the schema.
	first := errs[0]
	for _, e := range errs {
		for _, p := range errors.Positions(e) {
			if p.Filename() != "schema.cue" {
				return &CompileError{Field: "cue", Message: e.Error(), Pos: p}
			}
		}
	}
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}
