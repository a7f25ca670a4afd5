// Package engine implements the datalogger capture engine.
//
// An Engine samples up to eight registered channels on a common time base.
// Each channel copies a fixed-width value from its source every divider
// ticks until it has record-length samples. Samples are stored big-endian.
//
// ARCHITECTURE:
//
// Two call sites drive an Engine:
// 1. Service, once per time-base tick, at high priority. Takes samples.
// 2. Tick, periodically, at low priority. Resolves the state machine and,
// in MemCapture mode, moves filled buffers to the Medium.
//
// Capture Modes:
// - RamCapture: every channel writes into its own region of one shared
// buffer. Data returns the buffer once the capture is DataReady.
// - MemCapture: every channel fills one of two ping-pong buffers. Reaching
// the retrieve threshold raises a drain flag; Tick arbitrates flagged
// channels round robin into a FIFO ring and writes one half-buffer per call.
// A channel that reaches twice the threshold undrained stops the capture.
//
// State Machine:
//
//	Uninitialized -> FormatMemory -> Initialized -> Running -> Aborting -> DataReady
//	      \______________________________/
//
// Tick computes a pending state and commits it only along the edges listed
// by Transition. Start, Stop and configuration changes force the state
// directly. A failed medium write forces StateError until Reset.
package engine
