package compiler

import (
	"fmt"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/varsrc"
)

// Validation error codes (E200-E299)
const (
	ErrPlanNoChannels       = "E201" // at least one channel required
	ErrTooManyChannels      = "E202" // more channels than engine slots
	ErrSlotOutOfRange       = "E203" // slot outside 1..8
	ErrDuplicateSlot        = "E204" // two channels in one slot
	ErrDuplicateVariable    = "E205" // variable id or name reused
	ErrUnknownVariable      = "E206" // channel references undeclared variable
	ErrInvalidVariableType  = "E207" // unknown data type
	ErrInvalidChannelConfig = "E208" // zero divider or record length
	ErrMediumRequired       = "E209" // mem mode without a medium
	ErrInvalidMode          = "E210" // unknown or unimplemented mode
	ErrInvalidSignal        = "E211" // unknown signal kind
	ErrTimeBaseTooHigh      = "E212" // time base finer than the timer resolution
)

// MaxTimeBase is the highest sampling frequency a real-time run can tick at:
// one period per nanosecond.
const MaxTimeBase = 1_000_000_000

// ValidationError represents a plan validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidatePlan checks the rules the schema cannot express.
// Returns all errors found (does not fail-fast).
func ValidatePlan(p *ir.CapturePlan) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	switch p.Mode {
	case ir.ModeRAM:
	case ir.ModeMem:
		if p.Medium == nil {
			add(ErrMediumRequired, "medium", "mem mode requires a medium")
		}
	case "live":
		add(ErrInvalidMode, "mode", "live mode is not implemented")
	default:
		add(ErrInvalidMode, "mode", "unknown mode %q", p.Mode)
	}

	if p.TimeBase > MaxTimeBase {
		add(ErrTimeBaseTooHigh, "time_base", "time base %d Hz exceeds %d Hz", p.TimeBase, MaxTimeBase)
	}

	ids := make(map[uint32]bool)
	names := make(map[string]bool)
	for i, v := range p.Variables {
		field := fmt.Sprintf("variables[%d]", i)
		if ids[v.ID] {
			add(ErrDuplicateVariable, field+".id", "duplicate variable id %d", v.ID)
		}
		ids[v.ID] = true
		if names[v.Name] {
			add(ErrDuplicateVariable, field+".name", "duplicate variable name %q", v.Name)
		}
		names[v.Name] = true

		if _, err := varsrc.ParseDataType(v.Type); err != nil {
			add(ErrInvalidVariableType, field+".type", "%v", err)
		}
		if _, err := varsrc.BuildSignal(v.Signal); err != nil {
			add(ErrInvalidSignal, field+".signal.kind", "%v", err)
		}
	}

	if len(p.Channels) == 0 {
		add(ErrPlanNoChannels, "channels", "at least one channel is required")
	}
	if len(p.Channels) > engine.MaxChannels {
		add(ErrTooManyChannels, "channels", "%d channels, the engine has %d slots", len(p.Channels), engine.MaxChannels)
	}

	slots := make(map[int]bool)
	for i, c := range p.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		if c.Slot < 1 || c.Slot > engine.MaxChannels {
			add(ErrSlotOutOfRange, field+".slot", "slot %d outside 1..%d", c.Slot, engine.MaxChannels)
		} else if slots[c.Slot] {
			add(ErrDuplicateSlot, field+".slot", "slot %d used twice", c.Slot)
		}
		slots[c.Slot] = true

		if !names[c.Variable] {
			add(ErrUnknownVariable, field+".variable", "undeclared variable %q", c.Variable)
		}
		if c.Divider == 0 {
			add(ErrInvalidChannelConfig, field+".divider", "divider must be at least 1")
		}
		if c.RecordLength == 0 {
			add(ErrInvalidChannelConfig, field+".record_length", "record length must be at least 1")
		}
	}

	return errs
}
