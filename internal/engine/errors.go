package engine

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors. Values follow the firmware numbering so the
// command layer can forward them unchanged.
type Code uint8

const (
	CodeNone             Code = 0
	CodeWrongState       Code = 1
	CodeWrongOpMode      Code = 2
	CodeInvalidLogNumber Code = 3
	CodeTooManyLogs      Code = 4
	CodeChannelNotActive Code = 5
	CodeOutOfMemory      Code = 6
	CodeNoData           Code = 7
	CodeNotImplemented   Code = 8
	CodeInvalidConfig    Code = 9
)

// ExternalCodeOffset is added to a Code before it leaves the process, so that
// engine errors never collide with transport-level status codes.
const ExternalCodeOffset = 10

var codeNames = map[Code]string{
	CodeNone:             "NONE",
	CodeWrongState:       "WRONG_STATE",
	CodeWrongOpMode:      "WRONG_OPMODE",
	CodeInvalidLogNumber: "INVALID_LOG_NUMBER",
	CodeTooManyLogs:      "TOO_MANY_LOGS",
	CodeChannelNotActive: "CHANNEL_NOT_ACTIVE",
	CodeOutOfMemory:      "OUT_OF_MEMORY",
	CodeNoData:           "NO_DATA",
	CodeNotImplemented:   "NOT_IMPLEMENTED",
	CodeInvalidConfig:    "INVALID_CONFIG",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", uint8(c))
}

// External returns the code as reported to remote callers.
func (c Code) External() uint16 {
	return uint16(c) + ExternalCodeOffset
}

// Error is returned by every fallible engine operation.
//
// Op and Slot are diagnostic only; errors.Is compares by Code, so callers can
// match against the sentinels below regardless of context:
//
//	if errors.Is(err, engine.ErrWrongState) { ... }
type Error struct {
	Code    Code
	Op      string
	Slot    int
	State   State
	Message string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	switch {
	case e.Op != "" && e.Slot > 0:
		return fmt.Sprintf("%s slot %d: %s", e.Op, e.Slot, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrWrongState       = &Error{Code: CodeWrongState}
	ErrWrongOpMode      = &Error{Code: CodeWrongOpMode}
	ErrInvalidLogNumber = &Error{Code: CodeInvalidLogNumber}
	ErrTooManyLogs      = &Error{Code: CodeTooManyLogs}
	ErrChannelNotActive = &Error{Code: CodeChannelNotActive}
	ErrOutOfMemory      = &Error{Code: CodeOutOfMemory}
	ErrNoData           = &Error{Code: CodeNoData}
	ErrNotImplemented   = &Error{Code: CodeNotImplemented}
	ErrInvalidConfig    = &Error{Code: CodeInvalidConfig}
)

// CodeOf extracts the Code from err. Returns CodeNone for nil and for errors
// that did not originate in the engine.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}

func newError(code Code, op string, slot int, state State, format string, args ...any) *Error {
	e := &Error{Code: code, Op: op, Slot: slot, State: state}
	if format != "" {
		e.Message = fmt.Sprintf(format, args...)
	}
	return e
}

func wrongState(op string, s State) *Error {
	return newError(CodeWrongState, op, 0, s, "not allowed in state %s", s)
}
