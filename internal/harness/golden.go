package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qml/internal/engine"
)

// Snapshot renders a result as stable text for golden comparison. Numbers
// are printed to six significant digits so last-bit float noise cannot
// change a fixture.
func Snapshot(res *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", res.Scenario)

	if res.Run == nil {
		var ce codedError
		if errors.As(res.Err, &ce) {
			fmt.Fprintf(&b, "error: %s %s\n", ce.Kind(), ce.ErrorCode())
		} else if res.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", res.Err)
		}
		return []byte(b.String())
	}

	run := res.Run
	fmt.Fprintf(&b, "model: %s\n", run.ModelName)
	fmt.Fprintf(&b, "mode: %s\n", run.Mode)
	fmt.Fprintf(&b, "samples: %d\n", run.Samples)
	fmt.Fprintf(&b, "status: %s\n", run.Status)

	b.WriteString("variables:\n")
	for _, v := range run.Variables {
		fmt.Fprintf(&b, "  %s: %s\n", v.Name, renderVariable(v))
	}

	if len(run.ConstraintViolations) > 0 {
		b.WriteString("violations:\n")
		for _, v := range run.ConstraintViolations {
			fmt.Fprintf(&b, "  %s t=%d sample=%d %s: %s\n", v.Constraint, v.T, v.Sample, v.Severity, v.Message)
		}
	}
	return []byte(b.String())
}

func renderVariable(v engine.Variable) string {
	switch {
	case v.Value != nil:
		return num(*v.Value)
	case v.TimeSeries != nil:
		return nums(v.TimeSeries)
	case v.Summary != nil:
		return "mean " + num(v.Summary.Mean)
	}
	means := make([]float64, 0, len(v.Statistics))
	for _, s := range v.Statistics {
		if s == nil {
			break
		}
		means = append(means, s.Mean)
	}
	return "mean " + nums(means)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func nums(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = num(f)
	}
	return strings.Join(parts, " ")
}

// RunWithGolden executes a scenario, fails the test on assertion errors and
// compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's snapshot against its golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(result))
}
