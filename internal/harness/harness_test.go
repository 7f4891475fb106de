package harness

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/compiler"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/resolver"
)

const scenarioDir = "../../testdata/scenarios"

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)

			if s.Golden {
				AssertGolden(t, s.Name, result)
			}
		})
	}
}

func TestRun_RecordsRunInStore(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "decay.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	require.NotNil(t, result.Run)

	assert.Equal(t, result.Run.RunID, result.Record.ID)
	assert.Equal(t, result.Run.ModelHash, result.Record.ModelHash)
	assert.Equal(t, string(engine.Deterministic), result.Record.Mode)
	assert.Equal(t, int64(2), result.Record.Seq, "model is seq 1, run is seq 2")
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "decay.yaml"))
	require.NoError(t, err)

	want := 1.0
	step := 1
	s.Assertions = []Assertion{{Type: AssertValue, Var: "x", T: &step, Equals: &want}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion 0 (value)")
	assert.Contains(t, result.Errors[0], "Actual: 950")
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "cycle.yaml"))
	require.NoError(t, err)
	s.ExpectError = nil

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario cycle_rejected")
}

func TestRun_ExpectedErrorNotRaised(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "decay.yaml"))
	require.NoError(t, err)
	s.Assertions = nil
	s.ExpectError = &ErrorExpectation{Kind: "ProvenanceError", Code: "E301"}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "model was accepted")
}

func TestRun_CanceledContext(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "saas_monte_carlo.yaml"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMatchError(t *testing.T) {
	_, cycleErr := compiler.New().CompileFile("../../testdata/models/cycle.qml")
	require.Error(t, cycleErr)
	var ce *resolver.CircularDependencyError
	require.ErrorAs(t, cycleErr, &ce)

	tests := []struct {
		name string
		err  error
		want ErrorExpectation
		fail string
	}{
		{"kind and code", cycleErr, ErrorExpectation{Kind: "CircularDependencyError", Code: "E401"}, ""},
		{"code only", cycleErr, ErrorExpectation{Code: "E401"}, ""},
		{"wrong kind", cycleErr, ErrorExpectation{Kind: "TypeError"}, "expected error kind TypeError"},
		{"wrong code", cycleErr, ErrorExpectation{Code: "E201"}, "expected error code E201"},
		{"wrong message", cycleErr, ErrorExpectation{Code: "E401", Message: "no such text"}, "expected error containing"},
		{"uncoded", errors.New("boom"), ErrorExpectation{Code: "E401"}, "uncoded error"},
		{"accepted", nil, ErrorExpectation{Code: "E401"}, "model was accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchError(tt.err, &tt.want)
			if tt.fail == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.fail)
		})
	}
}
