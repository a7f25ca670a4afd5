package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/medium"
)

// Scenario defines a conformance test scenario: an engine configuration, a
// sequence of operations and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is the engine op mode selected before setup (ram, mem, live).
	// Defaults to ram.
	Mode string `yaml:"mode,omitempty"`

	// TimeBase is passed to the engine; it ends up in the mem mode header.
	TimeBase uint32 `yaml:"time_base,omitempty"`

	// BufferCap overrides the engine's buffer capacity.
	BufferCap int `yaml:"buffer_cap,omitempty"`

	// Medium attaches an emulated medium.
	Medium *ir.MediumSpec `yaml:"medium,omitempty"`

	// Variables are the simulated process variables channels can sample.
	Variables []ir.VariableSpec `yaml:"variables"`

	// Setup contains operations that establish the starting configuration.
	// They must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the operations under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state, data and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation.
type Step struct {
	// Op names the operation (see package documentation).
	Op string `yaml:"op"`

	// Args holds the operation's arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the operation must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected engine error code name, e.g. WRONG_STATE.
	// Empty or NONE expects success.
	Error string `yaml:"error,omitempty"`

	// State is the expected engine state after the step. Empty skips the check.
	State string `yaml:"state,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": engine state (State) and optionally Overrun
	// - "data": captured bytes (Hex)
	// - "channel": ChannelInfo of Slot, subset match against Expect
	// - "trace_count": Op ran exactly Count times
	// - "medium_writes": exact medium write sequence (Writes)
	Type string `yaml:"type"`

	State   string               `yaml:"state,omitempty"`
	Overrun *bool                `yaml:"overrun,omitempty"`
	Hex     string               `yaml:"hex,omitempty"`
	Slot    int                  `yaml:"slot,omitempty"`
	Expect  map[string]any       `yaml:"expect,omitempty"`
	Op      string               `yaml:"op,omitempty"`
	Count   int                  `yaml:"count,omitempty"`
	Writes  []medium.WriteRecord `yaml:"writes,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertData         = "data"
	AssertChannel      = "channel"
	AssertTraceCount   = "trace_count"
	AssertMediumWrites = "medium_writes"
)

// Operation names.
const (
	OpRegister    = "register"
	OpRemove      = "remove"
	OpInit        = "init"
	OpSetMode     = "set_mode"
	OpInitLogger  = "init_logger"
	OpStart       = "start"
	OpStop        = "stop"
	OpReset       = "reset"
	OpClearMemory = "clear_memory"
	OpSet         = "set"
	OpService     = "service"
	OpTick        = "tick"
	OpCycle       = "cycle"
	OpSettle      = "settle"
	OpFailMedium  = "fail_medium"
)

var knownOps = map[string]bool{
	OpRegister: true, OpRemove: true, OpInit: true, OpSetMode: true,
	OpInitLogger: true, OpStart: true, OpStop: true, OpReset: true,
	OpClearMemory: true, OpSet: true, OpService: true, OpTick: true,
	OpCycle: true, OpSettle: true, OpFailMedium: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := engine.ParseOpMode(s.Mode); err != nil {
		return err
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Op == OpFailMedium && step.Expect != nil && step.Expect.Error != "" {
		return fmt.Errorf("fail_medium cannot fail")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" && a.Overrun == nil {
			return fmt.Errorf("assertions[%d]: state or overrun is required for final_state", index)
		}
	case AssertData:
	case AssertChannel:
		if a.Slot == 0 {
			return fmt.Errorf("assertions[%d]: slot is required for channel", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for channel", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertMediumWrites:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
