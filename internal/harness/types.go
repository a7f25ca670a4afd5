package harness

// TraceEvent records one executed operation.
type TraceEvent struct {
	Seq   int64          `json:"seq"`
	Op    string         `json:"op"`
	Args  map[string]any `json:"args,omitempty"`
	Error string         `json:"error,omitempty"` // engine error code, omitted on success
	State string         `json:"state"`           // engine state after the operation
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every setup and flow operation in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the engine state after the flow.
	State string `json:"state"`

	// Overrun reports whether the last capture overran a buffer.
	Overrun bool `json:"overrun"`

	// Data is the captured data as hex: the RAM buffer once DataReady, or
	// the medium data area in mem mode. Empty when nothing was captured.
	Data string `json:"data,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed operation to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
