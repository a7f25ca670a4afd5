package harness

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/medium"
	"github.com/roach88/datalogger/internal/testutil"
	"github.com/roach88/datalogger/internal/varsrc"
)

// settleLimit bounds the ticks spent by a settle operation.
const settleLimit = 10000

// Harness is the test execution engine.
// It runs one scenario against a fresh engine with a deterministic clock.
type Harness struct {
	engine  *engine.Engine
	table   *varsrc.Table
	medium  *medium.Memory
	clock   *testutil.SeqClock
	logger  *slog.Logger
	samples uint64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine for isolation.
//
// Execution flow:
// 1. Build the variable table, medium and engine
// 2. Select the op mode
// 3. Execute setup steps (must succeed)
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
//
// Returns an error only when the scenario itself is broken (bad arguments,
// a failing setup step, a stalled settle); engine misbehavior is reported
// through Result.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()

	for i, step := range scenario.Setup {
		ev, err := h.execute(step)
		if err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		if ev.Error != "" {
			return nil, fmt.Errorf("setup step %d (%s): engine returned %s", i, step.Op, ev.Error)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.execute(step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		checkExpect(result, i, step, ev)

		h.logger.Info("flow step completed",
			"step", i,
			"op", step.Op,
			"error", ev.Error,
			"state", ev.State,
		)
	}

	result.State = h.engine.State().String()
	result.Overrun = h.engine.Overrun()
	result.Data = h.capturedHex()

	actx := &AssertionContext{
		Engine: h.engine,
		Medium: h.medium,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(s *Scenario) (*Harness, error) {
	table, err := varsrc.FromPlan(&ir.CapturePlan{Variables: s.Variables})
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTimeBase(s.TimeBase),
	}
	if s.BufferCap > 0 {
		opts = append(opts, engine.WithBufferCap(s.BufferCap))
	}

	h := &Harness{
		table:  table,
		clock:  testutil.NewSeqClock(),
		logger: logger,
	}
	if s.Medium != nil {
		h.medium = medium.NewMemory(s.Medium.Capacity, medium.WithLatency(s.Medium.Latency))
		opts = append(opts, engine.WithMedium(h.medium))
	}
	h.engine = engine.New(opts...)

	mode, err := engine.ParseOpMode(s.Mode)
	if err != nil {
		return nil, err
	}
	if mode != engine.RamCapture {
		if err := h.engine.SetOpMode(mode); err != nil && !errors.Is(err, engine.ErrNotImplemented) {
			return nil, fmt.Errorf("mode: %w", err)
		}
	}
	return h, nil
}

// execute runs one step. Engine errors are recorded in the trace event; the
// returned error means the step itself could not be carried out.
func (h *Harness) execute(step Step) (TraceEvent, error) {
	ev := TraceEvent{Op: step.Op, Args: step.Args}

	engErr, err := h.dispatch(step)
	if err != nil {
		return ev, err
	}

	ev.Seq = h.clock.Next()
	if engErr != nil {
		ev.Error = engine.CodeOf(engErr).String()
	}
	ev.State = h.engine.State().String()
	return ev, nil
}

// dispatch performs the step's operation. engErr is what the engine
// returned; err means the step's arguments were unusable.
func (h *Harness) dispatch(step Step) (engErr error, err error) {
	a := args(step.Args)
	e := h.engine

	switch step.Op {
	case OpRegister:
		slot, err := a.intArg("slot", 0)
		if err != nil {
			return nil, err
		}
		name, err := a.stringArg("variable")
		if err != nil {
			return nil, err
		}
		v, ok := h.table.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		divider, err := narrow[uint16](a, "divider", 1)
		if err != nil {
			return nil, err
		}
		rl, err := narrow[uint32](a, "record_length", 0)
		if err != nil {
			return nil, err
		}
		return e.RegisterVariable(slot, divider, rl, h.table, v.ID), nil

	case OpRemove:
		slot, err := a.intArg("slot", 0)
		if err != nil {
			return nil, err
		}
		return e.RemoveLog(slot), nil

	case OpInit:
		tb, err := narrow[uint32](a, "time_base", 0)
		if err != nil {
			return nil, err
		}
		e.Init(tb)
		return nil, nil

	case OpSetMode:
		name, err := a.stringArg("mode")
		if err != nil {
			return nil, err
		}
		mode, err := engine.ParseOpMode(name)
		if err != nil {
			return nil, err
		}
		return e.SetOpMode(mode), nil

	case OpInitLogger:
		free, err := a.boolArg("free", true)
		if err != nil {
			return nil, err
		}
		return e.InitLogger(free), nil

	case OpStart:
		return e.Start(), nil

	case OpStop:
		return e.Stop(), nil

	case OpReset:
		return e.Reset(), nil

	case OpClearMemory:
		return e.ClearMemory(), nil

	case OpSet:
		name, err := a.stringArg("variable")
		if err != nil {
			return nil, err
		}
		v, ok := h.table.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown variable %q", name)
		}
		value, err := a.intArg("value", 0)
		if err != nil {
			return nil, err
		}
		v.Set(float64(value))
		return nil, nil

	case OpService, OpTick, OpCycle:
		n, err := a.intArg("count", 1)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			if step.Op != OpTick {
				h.sample()
			}
			if step.Op != OpService {
				e.Tick()
			}
		}
		return nil, nil

	case OpSettle:
		for i := 0; ; i++ {
			st := e.State()
			if st != engine.StateFormatMemory && st != engine.StateAborting {
				return nil, nil
			}
			if i >= settleLimit {
				return nil, fmt.Errorf("engine still in %v after %d ticks", st, settleLimit)
			}
			e.Tick()
		}

	case OpFailMedium:
		if h.medium == nil {
			return nil, fmt.Errorf("no medium configured")
		}
		msg, err := a.stringArg("message")
		if err != nil {
			msg = "injected medium fault"
		}
		h.medium.FailNext(errors.New(msg))
		return nil, nil
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// sample advances the simulated variables and takes one engine sample.
func (h *Harness) sample() {
	h.table.Step(h.samples)
	h.samples++
	h.engine.Service()
}

// capturedHex returns the captured bytes as hex, or "" when there are none.
func (h *Harness) capturedHex() string {
	switch h.engine.OpMode() {
	case engine.RamCapture:
		data, err := h.engine.Data()
		if err != nil {
			return ""
		}
		return hex.EncodeToString(data)
	case engine.MemCapture:
		if h.medium == nil {
			return ""
		}
		last := h.engine.Header().LastAddress
		if last < engine.HeaderSize {
			return ""
		}
		data, err := h.medium.ReadAt(engine.HeaderSize, int(last)+1-engine.HeaderSize)
		if err != nil {
			return ""
		}
		return hex.EncodeToString(data)
	}
	return ""
}

// checkExpect compares a flow step's outcome with its expect clause.
func checkExpect(result *Result, index int, step Step, ev TraceEvent) {
	wantErr := ""
	if step.Expect != nil && step.Expect.Error != engine.CodeNone.String() {
		wantErr = step.Expect.Error
	}
	if ev.Error != wantErr {
		got := ev.Error
		if got == "" {
			got = engine.CodeNone.String()
		}
		if wantErr == "" {
			wantErr = engine.CodeNone.String()
		}
		result.AddError(fmt.Sprintf("flow[%d] %s: error %s, expected %s", index, step.Op, got, wantErr))
	}
	if step.Expect != nil && step.Expect.State != "" && ev.State != step.Expect.State {
		result.AddError(fmt.Sprintf("flow[%d] %s: state %s, expected %s", index, step.Op, ev.State, step.Expect.State))
	}
}
