package harness

import (
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when the expected error occurred or every assertion
	// held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Run is the engine result; nil when the model was rejected.
	Run *engine.Result `json:"run,omitempty"`

	// Record is the stored run.
	Record *store.RunRecord `json:"record,omitempty"`

	// Err is the compile or run error the model was rejected with.
	Err error `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Scenario: name,
		Pass:     true,
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
