package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/medium"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			code := event.Error
			if code == "" {
				code = "ok"
			}
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s (%s)\n", event.Seq, event.Op, event.Args, code, event.State)
		}
	}

	return buf.String()
}

// assertFinalState checks the engine state and overrun flag after the flow.
func assertFinalState(result *Result, assertion Assertion) error {
	if assertion.State != "" && result.State != assertion.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "state " + assertion.State,
			Actual:   "state " + result.State,
			Trace:    result.Trace,
		}
	}
	if assertion.Overrun != nil && result.Overrun != *assertion.Overrun {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("overrun %t", *assertion.Overrun),
			Actual:   fmt.Sprintf("overrun %t", result.Overrun),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertData compares the captured bytes. Hex digits may be grouped with
// spaces for readability.
func assertData(result *Result, assertion Assertion) error {
	want := strings.ToLower(strings.Join(strings.Fields(assertion.Hex), ""))
	if result.Data != want {
		return &AssertionError{
			Type:     AssertData,
			Expected: fmt.Sprintf("data %q", want),
			Actual:   fmt.Sprintf("data %q", result.Data),
		}
	}
	return nil
}

// assertChannel subset-matches a channel snapshot. Keys are the JSON names
// of engine.ChannelInfo fields.
func assertChannel(e *engine.Engine, assertion Assertion) error {
	info, err := e.ChannelInfo(assertion.Slot)
	if err != nil {
		return &AssertionError{
			Type:     AssertChannel,
			Expected: fmt.Sprintf("slot %d readable", assertion.Slot),
			Actual:   err.Error(),
		}
	}

	actual, err := toMap(info)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := assertion.Expect[key]
		got, ok := actual[key]
		if !ok {
			got = zeroFor(want)
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertChannel,
				Expected: fmt.Sprintf("slot %d %s = %v", assertion.Slot, key, want),
				Actual:   fmt.Sprintf("slot %d %s = %v", assertion.Slot, key, got),
			}
		}
	}
	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s executed %d times", assertion.Op, assertion.Count),
			Actual:   fmt.Sprintf("%s executed %d times", assertion.Op, count),
			Trace:    trace,
		}
	}
	return nil
}

// assertMediumWrites compares the medium's write log exactly.
func assertMediumWrites(m *medium.Memory, assertion Assertion) error {
	got := m.Writes()
	want := assertion.Writes
	if want == nil {
		want = []medium.WriteRecord{}
	}
	if !reflect.DeepEqual(got, want) {
		return &AssertionError{
			Type:     AssertMediumWrites,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// toMap renders v through its JSON form, with integers as int64.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, val := range m {
		if f, ok := val.(float64); ok && f == float64(int64(f)) {
			m[k] = int64(f)
		}
	}
	return m, nil
}

// zeroFor is the value an omitempty field stands for.
func zeroFor(want any) any {
	switch want.(type) {
	case bool:
		return false
	case string:
		return ""
	}
	return int64(0)
}

// valuesEqual compares two values for equality.
// YAML integers arrive as int; JSON snapshots carry int64.
func valuesEqual(actual, expected any) bool {
	if a, ok := actual.(int64); ok {
		switch e := expected.(type) {
		case int:
			return a == int64(e)
		case int64:
			return a == e
		}
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Engine *engine.Engine
	Medium *medium.Memory
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for channel assertions and the
// medium for write assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertData:
			err = assertData(result, assertion)
		case AssertChannel:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: channel requires an engine", i)
			} else {
				err = assertChannel(actx.Engine, assertion)
			}
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertMediumWrites:
			if actx == nil || actx.Medium == nil {
				err = fmt.Errorf("assertion[%d]: medium_writes requires a medium", i)
			} else {
				err = assertMediumWrites(actx.Medium, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
