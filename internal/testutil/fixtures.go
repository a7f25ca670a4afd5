package testutil

import (
	"fmt"

	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/store"
)

// CaptureIDs returns a generator handing out capture-0001, capture-0002 and
// so on, n of them.
func CaptureIDs(n int) *store.FixedGenerator {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("capture-%04d", i+1)
	}
	return store.NewFixedGenerator(ids...)
}

// RAMPlan is a two-channel RAM capture plan over counter signals: four speed
// samples in slot 1 and two torque samples at half rate in slot 2.
func RAMPlan(name string) *ir.CapturePlan {
	return &ir.CapturePlan{
		Name:     name,
		Mode:     ir.ModeRAM,
		TimeBase: 1000,
		Variables: []ir.VariableSpec{
			{ID: 1, Name: "speed", Type: "u8", Signal: &ir.SignalSpec{Kind: "counter", Start: 1, Step: 1}},
			{ID: 2, Name: "torque", Type: "u8", Signal: &ir.SignalSpec{Kind: "counter", Start: 1, Step: 1}},
		},
		Channels: []ir.ChannelSpec{
			{Slot: 1, Variable: "speed", Divider: 1, RecordLength: 4},
			{Slot: 2, Variable: "torque", Divider: 2, RecordLength: 2},
		},
	}
}

// MemPlan is a one-channel mem capture plan that drains twice and flushes
// once onto a 256-byte medium.
func MemPlan(name string) *ir.CapturePlan {
	return &ir.CapturePlan{
		Name:      name,
		Mode:      ir.ModeMem,
		TimeBase:  500,
		BufferCap: 64,
		Medium:    &ir.MediumSpec{Capacity: 256},
		Variables: []ir.VariableSpec{
			{ID: 0xA1, Name: "pressure", Type: "u16", Signal: &ir.SignalSpec{Kind: "counter", Start: 1, Step: 1}},
		},
		Channels: []ir.ChannelSpec{
			{Slot: 1, Variable: "pressure", Divider: 1, RecordLength: 10},
		},
	}
}
