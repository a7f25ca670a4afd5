package varsrc

import (
	"fmt"
	"math"

	"github.com/roach88/datalogger/internal/ir"
)

// Signal produces a variable's value at a given tick.
type Signal interface {
	Value(tick uint64) float64
}

// Constant holds one value forever.
type Constant struct {
	V float64
}

func (c Constant) Value(uint64) float64 { return c.V }

// Counter starts at Start and adds Step every tick.
type Counter struct {
	Start float64
	Step  float64
}

func (c Counter) Value(tick uint64) float64 {
	return c.Start + c.Step*float64(tick)
}

// Sine oscillates around Offset with the given amplitude and period in ticks.
type Sine struct {
	Amplitude float64
	Period    uint64
	Offset    float64
}

func (s Sine) Value(tick uint64) float64 {
	if s.Period == 0 {
		return s.Offset
	}
	phase := 2 * math.Pi * float64(tick%s.Period) / float64(s.Period)
	return s.Offset + s.Amplitude*math.Sin(phase)
}

// Square alternates between Low and High every half period.
type Square struct {
	Low    float64
	High   float64
	Period uint64
}

func (s Square) Value(tick uint64) float64 {
	if s.Period == 0 || tick%s.Period < s.Period/2 {
		return s.Low
	}
	return s.High
}

// BuildSignal turns a plan's signal declaration into a Signal. A nil spec
// yields a nil Signal: the variable keeps whatever is Set on it.
func BuildSignal(s *ir.SignalSpec) (Signal, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case "constant":
		return Constant{V: float64(s.Start)}, nil
	case "counter":
		return Counter{Start: float64(s.Start), Step: float64(s.Step)}, nil
	case "sine":
		return Sine{Amplitude: float64(s.Amplitude), Period: s.Period, Offset: float64(s.Offset)}, nil
	case "square":
		return Square{Low: float64(s.Low), High: float64(s.High), Period: s.Period}, nil
	}
	return nil, fmt.Errorf("unknown signal kind %q", s.Kind)
}

// FromPlan builds a table holding every variable the plan declares.
func FromPlan(p *ir.CapturePlan) (*Table, error) {
	t := NewTable()
	for _, vs := range p.Variables {
		typ, err := ParseDataType(vs.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", vs.Name, err)
		}
		sig, err := BuildSignal(vs.Signal)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", vs.Name, err)
		}
		if _, err := t.Add(vs.ID, vs.Name, typ, sig); err != nil {
			return nil, err
		}
	}
	return t, nil
}
