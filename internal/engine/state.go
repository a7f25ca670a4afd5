package engine

import "fmt"

// State is the lifecycle state of an Engine.
type State int8

const (
	StateError         State = -1
	StateUninitialized State = 0 // channels changed since the last layout; power-on value
	StateFormatMemory  State = 1 // waiting for the header to reach the medium
	StateInitialized   State = 2 // ready to start
	StateDataReady     State = 3 // stopped, captured data retrievable
	StateRunning       State = 4
	StateAborting      State = 5
)

var stateNames = map[State]string{
	StateError:         "Error",
	StateUninitialized: "Uninitialized",
	StateFormatMemory:  "FormatMemory",
	StateInitialized:   "Initialized",
	StateDataReady:     "DataReady",
	StateRunning:       "Running",
	StateAborting:      "Aborting",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// busy reports whether a capture or a medium operation is in progress.
// Configuration calls are rejected in these states.
func (s State) busy() bool {
	switch s {
	case StateRunning, StateAborting, StateFormatMemory:
		return true
	}
	return false
}

// capturing reports whether a capture owns the buffers. Reset and
// ClearMemory are refused only here, so an engine waiting on a medium that
// never becomes idle can always be brought back to Uninitialized.
func (s State) capturing() bool {
	return s == StateRunning || s == StateAborting
}

// OpMode selects where samples go.
type OpMode uint8

const (
	// RamCapture records into one engine-owned buffer read back with Data.
	RamCapture OpMode = 0
	// MemCapture records into per-channel double buffers drained to a Medium.
	MemCapture OpMode = 1
	// Live streams samples directly. Not implemented.
	Live OpMode = 2
)

func (m OpMode) String() string {
	switch m {
	case RamCapture:
		return "ram"
	case MemCapture:
		return "mem"
	case Live:
		return "live"
	}
	return fmt.Sprintf("OpMode(%d)", uint8(m))
}

// ParseOpMode accepts the names produced by OpMode.String.
func ParseOpMode(s string) (OpMode, error) {
	switch s {
	case "ram", "":
		return RamCapture, nil
	case "mem":
		return MemCapture, nil
	case "live":
		return Live, nil
	}
	return 0, fmt.Errorf("unknown op mode %q", s)
}

// legal holds the edges the pending/commit resolver may take. Edges used by
// Start, Stop and configuration changes are not listed: those go through
// forceState.
var legal = map[State][]State{
	StateUninitialized: {StateInitialized, StateFormatMemory},
	StateFormatMemory:  {StateInitialized},
	StateAborting:      {StateDataReady},
}

// Transition reports whether the resolver may move from one state to another.
// Staying in the same state is always allowed.
func Transition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// setState commits the pending state if the transition table allows it.
// An illegal pending value is dropped; Tick recomputes it on the next call.
// Caller must hold e.mu.
func (e *Engine) setState() bool {
	if e.pending == e.state {
		return false
	}
	if !Transition(e.state, e.pending) {
		e.logger.Debug("pending state discarded",
			"state", e.state,
			"pending", e.pending,
		)
		e.pending = e.state
		return false
	}
	e.logger.Debug("state committed", "from", e.state, "to", e.pending)
	e.state = e.pending
	return true
}

// forceState sets the state without consulting the transition table.
// Only the time-critical edges (Start, Stop) and configuration resets use it.
// Caller must hold e.mu.
func (e *Engine) forceState(s State) {
	if e.state != s {
		e.logger.Debug("state forced", "from", e.state, "to", s)
	}
	e.state = s
	e.pending = s
}

// Tick runs one step of the state machine: it recomputes the pending state
// from the current state and the medium's readiness, performs the medium work
// that belongs to that state, and commits the result through the transition
// table. Intended for a low-priority periodic caller.
//
// Medium writes happen with the engine unlocked so Service is never held up
// by storage I/O. If the state moved underneath (e.g. the sampler stopped the
// capture) the pending value computed before the write is discarded.
func (e *Engine) Tick() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	e.pending = e.state
	from := e.state

	var job *writeJob
	switch e.state {
	case StateFormatMemory:
		job = e.headerJob()

	case StateRunning:
		if e.opMode == MemCapture {
			e.ser.arbitrate(e.active)
			job = e.drainJob()
		}

	case StateAborting:
		if e.opMode == MemCapture {
			var done bool
			job, done = e.flushJob()
			if done {
				e.pending = StateDataReady
			}
		} else {
			e.pending = StateDataReady
		}
	}

	if job != nil {
		e.mu.Unlock()
		err := e.medium.Write(job.addr, job.data)
		e.mu.Lock()
		if err != nil {
			e.fail(job, err)
			e.mu.Unlock()
			return
		}
		e.logger.Debug("medium write complete",
			"kind", job.kind,
			"slot", job.slot,
			"addr", job.addr,
			"bytes", len(job.data),
		)
		if job.kind == jobHeader {
			e.pending = StateInitialized
		}
	}

	if e.state == from {
		e.setState()
	} else {
		e.pending = e.state
	}
	e.mu.Unlock()
}
