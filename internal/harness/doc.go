// Package harness runs YAML conformance scenarios against the datalogger
// engine.
//
// A scenario declares the simulated variables, an optional emulated medium
// and a list of engine operations. Each operation is traced with the error
// code it returned and the state it left the engine in; assertions then
// check the final state, the captured data and the trace.
//
// # Scenario Format
//
//	name: ram_two_channels
//	description: "Two channels share the RAM buffer"
//	mode: ram
//	variables:
//	  - {id: 1, name: speed, type: u8, signal: {kind: counter, start: 1, step: 1}}
//	setup:
//	  - op: register
//	    args: {slot: 1, variable: speed, divider: 1, record_length: 4}
//	flow:
//	  - op: init_logger
//	    expect: {state: Initialized}
//	  - op: start
//	  - op: cycle
//	    args: {count: 4}
//	  - op: stop
//	    expect: {error: WRONG_STATE}
//	assertions:
//	  - type: final_state
//	    state: DataReady
//	  - type: data
//	    hex: "01020304"
//
// # Operations
//
//   - register: slot, variable, divider, record_length
//   - remove: slot
//   - init: time_base
//   - set_mode: mode (ram, mem, live)
//   - init_logger: free (default true)
//   - start, stop, reset, clear_memory
//   - set: variable, value
//   - service, tick, cycle: count (default 1); cycle is service then tick
//   - settle: tick until the engine leaves FormatMemory or Aborting
//   - fail_medium: message; the next medium write fails
//
// Setup operations must succeed. A flow operation without an expect clause
// must succeed too; with one, its error code (NONE for success) and the
// resulting state are compared.
//
// # Assertion Types
//
//   - final_state: engine state and, optionally, the overrun flag
//   - data: captured bytes as hex (RAM buffer, or the medium data area)
//   - channel: subset match against a channel's ChannelInfo
//   - trace_count: how many times an operation ran
//   - medium_writes: the exact sequence of medium writes
//
// # Deterministic Testing
//
// Scenarios run on one goroutine with a deterministic trace clock
// (testutil.SeqClock), so identical scenarios produce identical
// traces for golden snapshot comparison.
package harness
