package harness

import "github.com/roach88/rollcall/internal/attendance"

// TraceEvent is one save-state transition observed during a scenario.
type TraceEvent struct {
	Date string `json:"date"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every observed save-state transition in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Records is the stored record map of the last opened date.
	Records attendance.RecordMap `json:"records,omitempty"`

	// Report is the rendered report of the last opened date.
	Report string `json:"report,omitempty"`
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
