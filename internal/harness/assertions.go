package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/qml/internal/engine"
)

// DefaultTolerance is the absolute tolerance of numeric assertions that
// name none.
const DefaultTolerance = 1e-9

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Ctx context.Context

	// Rerun executes the scenario's model again with the given worker
	// count.
	Rerun func(ctx context.Context, workers int) (*engine.Result, error)
}

// EvaluateAssertions checks every assertion and returns the failure
// messages in assertion order.
func EvaluateAssertions(res *engine.Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(res, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(res *engine.Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStatus:
		return assertStatus(res, a)
	case AssertValue:
		return assertValue(res, a)
	case AssertLength:
		return assertLength(res, a)
	case AssertViolation:
		return assertViolation(res, a)
	case AssertNoViolations:
		return assertNoViolations(res)
	case AssertViolationRate:
		return assertViolationRate(res, a)
	case AssertPercentileOrder:
		return assertPercentileOrder(res, a)
	case AssertReproducible:
		return assertReproducible(res, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertStatus(res *engine.Result, a Assertion) error {
	if res.Status != a.Status {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: a.Status,
			Actual:   res.Status,
		}
	}
	return nil
}

// assertValue compares one number of the result. Deterministic runs read
// the value itself; Monte Carlo runs read Stat (default mean).
func assertValue(res *engine.Result, a Assertion) error {
	got, err := lookupValue(res, a)
	if err != nil {
		return err
	}
	if !within(got, *a.Equals, a.Tolerance) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s%s = %g ± %g", a.Var, at(a.T), *a.Equals, tolerance(a.Tolerance)),
			Actual:   fmt.Sprintf("%g", got),
		}
	}
	return nil
}

func lookupValue(res *engine.Result, a Assertion) (float64, error) {
	v, ok := res.Variables.Lookup(a.Var)
	if !ok {
		return 0, fmt.Errorf("var %q not in result", a.Var)
	}

	switch {
	case v.Value != nil:
		return *v.Value, nil
	case v.Summary != nil:
		return pickStat(v.Summary, a.Stat), nil
	}

	if a.T == nil {
		return 0, fmt.Errorf("var %q is a time series: t is required", a.Var)
	}
	t := *a.T
	switch {
	case v.TimeSeries != nil:
		if t < 0 || t >= len(v.TimeSeries) {
			return 0, fmt.Errorf("var %q has no value at t=%d (length %d)", a.Var, t, len(v.TimeSeries))
		}
		return v.TimeSeries[t], nil
	case v.Statistics != nil:
		if t < 0 || t >= len(v.Statistics) || v.Statistics[t] == nil {
			return 0, fmt.Errorf("var %q has no statistics at t=%d", a.Var, t)
		}
		return pickStat(v.Statistics[t], a.Stat), nil
	}
	return 0, fmt.Errorf("var %q has no values", a.Var)
}

// statField returns the accessor for a statistic name.
func statField(name string) (func(*engine.Stats) float64, bool) {
	switch name {
	case "", "mean":
		return func(s *engine.Stats) float64 { return s.Mean }, true
	case "median":
		return func(s *engine.Stats) float64 { return s.Median }, true
	case "stddev":
		return func(s *engine.Stats) float64 { return s.StdDev }, true
	case "p5":
		return func(s *engine.Stats) float64 { return s.P5 }, true
	case "p25":
		return func(s *engine.Stats) float64 { return s.P25 }, true
	case "p75":
		return func(s *engine.Stats) float64 { return s.P75 }, true
	case "p95":
		return func(s *engine.Stats) float64 { return s.P95 }, true
	}
	return nil, false
}

func pickStat(s *engine.Stats, name string) float64 {
	f, _ := statField(name)
	return f(s)
}

func assertLength(res *engine.Result, a Assertion) error {
	v, ok := res.Variables.Lookup(a.Var)
	if !ok {
		return fmt.Errorf("var %q not in result", a.Var)
	}
	n := len(v.TimeSeries)
	if v.Statistics != nil {
		n = len(v.Statistics)
	}
	if float64(n) != *a.Equals {
		return &AssertionError{
			Type:     AssertLength,
			Expected: fmt.Sprintf("%s has %g steps", a.Var, *a.Equals),
			Actual:   fmt.Sprintf("%d steps", n),
		}
	}
	return nil
}

// assertViolation finds a violation of the constraint, optionally at step T
// and with a message containing Message.
func assertViolation(res *engine.Result, a Assertion) error {
	for _, v := range res.ConstraintViolations {
		if v.Constraint != a.Constraint {
			continue
		}
		if a.T != nil && v.T != *a.T {
			continue
		}
		if !strings.Contains(v.Message, a.Message) {
			continue
		}
		return nil
	}

	var got []string
	for _, v := range res.ConstraintViolations {
		got = append(got, fmt.Sprintf("%s@t=%d %q", v.Constraint, v.T, v.Message))
	}
	return &AssertionError{
		Type:     AssertViolation,
		Expected: fmt.Sprintf("violation of %s%s containing %q", a.Constraint, at(a.T), a.Message),
		Actual:   fmt.Sprintf("violations: [%s]", strings.Join(got, ", ")),
	}
}

func assertNoViolations(res *engine.Result) error {
	if n := len(res.ConstraintViolations); n > 0 {
		first := res.ConstraintViolations[0]
		return &AssertionError{
			Type:     AssertNoViolations,
			Expected: "no constraint violations",
			Actual:   fmt.Sprintf("%d violations, first %s at t=%d: %s", n, first.Constraint, first.T, first.Message),
		}
	}
	return nil
}

func assertViolationRate(res *engine.Result, a Assertion) error {
	for _, s := range res.ConstraintSummary {
		if s.Constraint != a.Constraint {
			continue
		}
		if !within(s.ViolationRate, *a.Equals, a.Tolerance) {
			return &AssertionError{
				Type:     AssertViolationRate,
				Expected: fmt.Sprintf("%s violation rate %g ± %g", a.Constraint, *a.Equals, tolerance(a.Tolerance)),
				Actual:   fmt.Sprintf("%g (%d of %d samples)", s.ViolationRate, s.ViolatingSamples, res.Samples),
			}
		}
		return nil
	}
	return fmt.Errorf("constraint %q not in summary", a.Constraint)
}

// assertPercentileOrder checks that each step's percentiles are
// non-decreasing.
func assertPercentileOrder(res *engine.Result, a Assertion) error {
	v, ok := res.Variables.Lookup(a.Var)
	if !ok {
		return fmt.Errorf("var %q not in result", a.Var)
	}
	stats := v.Statistics
	if v.Summary != nil {
		stats = []*engine.Stats{v.Summary}
	}
	if len(stats) == 0 {
		return fmt.Errorf("var %q has no statistics (deterministic run?)", a.Var)
	}
	for t, s := range stats {
		if s == nil {
			continue
		}
		qs := []float64{s.P5, s.P25, s.Median, s.P75, s.P95}
		for i := 1; i < len(qs); i++ {
			if qs[i] < qs[i-1] {
				return &AssertionError{
					Type:     AssertPercentileOrder,
					Expected: fmt.Sprintf("%s percentiles non-decreasing at t=%d", a.Var, t),
					Actual:   fmt.Sprintf("p5=%g p25=%g median=%g p75=%g p95=%g", s.P5, s.P25, s.Median, s.P75, s.P95),
				}
			}
		}
	}
	return nil
}

// assertReproducible reruns the model on a single worker and requires
// byte-identical JSON.
func assertReproducible(res *engine.Result, actx *AssertionContext) error {
	if actx == nil || actx.Rerun == nil {
		return fmt.Errorf("reproducible needs a rerun function")
	}
	again, err := actx.Rerun(actx.Ctx, 1)
	if err != nil {
		return fmt.Errorf("rerun: %w", err)
	}
	want, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	got, err := json.Marshal(again)
	if err != nil {
		return fmt.Errorf("marshal rerun: %w", err)
	}
	if !bytes.Equal(want, got) {
		return &AssertionError{
			Type:     AssertReproducible,
			Expected: "identical result on one worker",
			Actual:   fmt.Sprintf("results differ (%d vs %d bytes)", len(want), len(got)),
		}
	}
	return nil
}

func within(got, want, tol float64) bool {
	return math.Abs(got-want) <= tolerance(tol)
}

func tolerance(tol float64) float64 {
	if tol == 0 {
		return DefaultTolerance
	}
	return tol
}

func at(t *int) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf(" at t=%d", *t)
}
