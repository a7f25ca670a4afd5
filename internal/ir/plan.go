package ir

// Capture modes accepted in plans.
const (
	ModeRAM = "ram"
	ModeMem = "mem"
)

// CapturePlan describes one capture: the simulated variables, the channels
// sampling them and the engine configuration.
type CapturePlan struct {
	Name      string         `json:"name" yaml:"name"`
	Mode      string         `json:"mode" yaml:"mode"`
	TimeBase  uint32         `json:"time_base" yaml:"time_base"`
	BufferCap int            `json:"buffer_cap,omitempty" yaml:"buffer_cap,omitempty"`
	Ticks     uint64         `json:"ticks,omitempty" yaml:"ticks,omitempty"` // stop after this many ticks; 0 runs to completion
	Medium    *MediumSpec    `json:"medium,omitempty" yaml:"medium,omitempty"`
	Variables []VariableSpec `json:"variables" yaml:"variables"`
	Channels  []ChannelSpec  `json:"channels" yaml:"channels"`
}

// MediumSpec sizes the emulated non-volatile store used in mem mode.
type MediumSpec struct {
	Capacity uint32 `json:"capacity" yaml:"capacity"`
	Latency  int    `json:"latency,omitempty" yaml:"latency,omitempty"` // busy polls after each write
}

// VariableSpec declares a simulated process variable.
type VariableSpec struct {
	ID     uint32      `json:"id" yaml:"id"`
	Name   string      `json:"name" yaml:"name"`
	Type   string      `json:"type" yaml:"type"`
	Signal *SignalSpec `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// SignalSpec drives a variable's value over time.
//
// Kinds: constant (start), counter (start, step), sine (amplitude, period,
// offset), square (low, high, period).
type SignalSpec struct {
	Kind      string `json:"kind" yaml:"kind"`
	Start     int64  `json:"start,omitempty" yaml:"start,omitempty"`
	Step      int64  `json:"step,omitempty" yaml:"step,omitempty"`
	Amplitude int64  `json:"amplitude,omitempty" yaml:"amplitude,omitempty"`
	Offset    int64  `json:"offset,omitempty" yaml:"offset,omitempty"`
	Low       int64  `json:"low,omitempty" yaml:"low,omitempty"`
	High      int64  `json:"high,omitempty" yaml:"high,omitempty"`
	Period    uint64 `json:"period,omitempty" yaml:"period,omitempty"`
}

// ChannelSpec binds a variable to an engine slot.
type ChannelSpec struct {
	Slot         int    `json:"slot" yaml:"slot"`
	Variable     string `json:"variable" yaml:"variable"`
	Divider      uint16 `json:"divider" yaml:"divider"`
	RecordLength uint32 `json:"record_length" yaml:"record_length"`
}

// Variable returns the variable named name.
func (p *CapturePlan) Variable(name string) (VariableSpec, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableSpec{}, false
}
