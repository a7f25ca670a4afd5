package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/datalogger/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testPlan returns a small ram mode plan with two channels.
func testPlan(name string) ir.CapturePlan {
	return ir.CapturePlan{
		Name:     name,
		Mode:     ir.ModeRAM,
		TimeBase: 1000,
		Variables: []ir.VariableSpec{
			{ID: 1, Name: "speed", Type: "u8"},
			{ID: 2, Name: "torque", Type: "u16", Signal: &ir.SignalSpec{Kind: "counter", Start: 5, Step: 2}},
		},
		Channels: []ir.ChannelSpec{
			{Slot: 1, Variable: "speed", Divider: 1, RecordLength: 4},
			{Slot: 3, Variable: "torque", Divider: 2, RecordLength: 2},
		},
	}
}

// createTestCapture creates a capture of testPlan with minimal required fields.
func createTestCapture(name string, data []byte) ir.Capture {
	return ir.Capture{
		PlanName:      name,
		Plan:          testPlan(name),
		Mode:          ir.ModeRAM,
		FinalState:    "DataReady",
		Ticks:         8,
		TimeBase:      1000,
		Data:          data,
		EngineVersion: "0.5.0",
		PlanVersion:   "1",
		Channels: []ir.CaptureChannel{
			{Slot: 1, ChannelID: 1, Variable: "speed", Width: 1, Divider: 1, RecordLength: 4, Offset: 0, Samples: 4},
			{Slot: 3, ChannelID: 2, Variable: "torque", Width: 2, Divider: 2, RecordLength: 2, Offset: 4, Samples: 2},
		},
	}
}
