// Package constraint checks constraint predicates inside the execution
// loop and aggregates violations across samples.
package constraint

import (
	"strconv"
	"strings"

	"github.com/roach88/qml/internal/ir"
)

// Violation records one failed predicate.
type Violation struct {
	Constraint string      `json:"constraint"`
	T          int         `json:"t"`
	Sample     int         `json:"sample"`
	Severity   ir.Severity `json:"severity"`
	Message    string      `json:"message"`
}

// State is the per-sample monitor state.
type State int

// Monitor states. Halted is terminal.
const (
	Running State = iota
	Halted
)

func (s State) String() string {
	if s == Halted {
		return "halted"
	}
	return "running"
}

// EvalFunc evaluates constraint i at the current step.
type EvalFunc func(i int, c *ir.Constraint) (bool, error)

// Monitor runs the constraints of one sample. It is not safe for
// concurrent use; each sample owns one.
type Monitor struct {
	constraints []ir.Constraint
	order       []int
	sample      int
	state       State
	haltedAt    int
	violations  []Violation
}

// NewMonitor returns a Running monitor for sample. order lists the
// constraint indices to check, in evaluation order.
func NewMonitor(constraints []ir.Constraint, order []int, sample int) *Monitor {
	return &Monitor{constraints: constraints, order: order, sample: sample, haltedAt: -1}
}

// Step checks every constraint scoped at t. A failed fatal constraint moves
// the monitor to Halted after the remaining constraints of the same step
// have been checked; the caller must not evaluate later steps. Step on a
// Halted monitor is a no-op.
func (m *Monitor) Step(t int, eval EvalFunc) error {
	if m.state == Halted {
		return nil
	}
	fatal := false
	for _, i := range m.order {
		c := &m.constraints[i]
		if !c.Scope.Applies(t) {
			continue
		}
		ok, err := eval(i, c)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		m.violations = append(m.violations, Violation{
			Constraint: c.Name,
			T:          t,
			Sample:     m.sample,
			Severity:   c.Severity,
			Message:    Render(c.Message, c.Name, t, m.sample),
		})
		if c.Severity == ir.SeverityFatal {
			fatal = true
		}
	}
	if fatal {
		m.state = Halted
		m.haltedAt = t
	}
	return nil
}

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// HaltedAt returns the step of the fatal violation, or -1.
func (m *Monitor) HaltedAt() int { return m.haltedAt }

// Violations returns the violations recorded so far, in (t, order) order.
func (m *Monitor) Violations() []Violation { return m.violations }

// Render expands the {t}, {sample} and {constraint} placeholders of a
// message template.
func Render(template, name string, t, sample int) string {
	if !strings.Contains(template, "{") {
		return template
	}
	r := strings.NewReplacer(
		"{t}", strconv.Itoa(t),
		"{sample}", strconv.Itoa(sample),
		"{constraint}", name,
	)
	return r.Replace(template)
}
