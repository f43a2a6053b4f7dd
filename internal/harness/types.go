package harness

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Args   map[string]any `json:"args"`
	Result map[string]any `json:"result"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every flow step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
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

// AddTrace appends an executed step.
func (r *Result) AddTrace(op string, args, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:   len(r.Trace) + 1,
		Op:     op,
		Args:   args,
		Result: result,
	})
}
