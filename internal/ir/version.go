package ir

// Version constants for plan schema and engine.
const (
	// PlanVersion is the capture plan schema version.
	PlanVersion = "1"

	// EngineVersion is the datalogger engine version.
	EngineVersion = "0.5.0"
)
