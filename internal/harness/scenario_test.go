package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/engine"
)

// writeScenario writes a scenario and an empty model next to it.
func writeScenario(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "m.qml"), []byte("model M {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "s.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: valid
description: "A valid scenario"
model: m.qml
mode: monte_carlo
samples: 50
seed: 7
assertions:
  - type: value
    var: x
    t: 3
    stat: p95
    equals: 12.5
    tolerance: 0.1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, filepath.Join(dir, "m.qml"), s.Model)
	assert.Equal(t, engine.MonteCarlo, s.Mode)
	assert.Equal(t, 50, s.Samples)
	assert.Equal(t, uint64(7), s.Seed)
	require.Len(t, s.Assertions, 1)

	a := s.Assertions[0]
	require.NotNil(t, a.T)
	assert.Equal(t, 3, *a.T)
	require.NotNil(t, a.Equals)
	assert.Equal(t, 12.5, *a.Equals)
	assert.Equal(t, "p95", a.Stat)
}

func TestLoadScenario_DefaultsToDeterministic(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: default_mode
description: "No mode given"
model: m.qml
golden: true
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, engine.Deterministic, s.Mode)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			body: "description: d\nmodel: m.qml\ngolden: true\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: a\nmodel: m.qml\ngolden: true\n",
			want: "description is required",
		},
		{
			name: "missing model",
			body: "name: a\ndescription: d\ngolden: true\n",
			want: "model is required",
		},
		{
			name: "model not found",
			body: "name: a\ndescription: d\nmodel: nope.qml\ngolden: true\n",
			want: "model file not found",
		},
		{
			name: "unknown mode",
			body: "name: a\ndescription: d\nmodel: m.qml\nmode: quantum\ngolden: true\n",
			want: `unknown mode "quantum"`,
		},
		{
			name: "negative samples",
			body: "name: a\ndescription: d\nmodel: m.qml\nsamples: -1\ngolden: true\n",
			want: "must be non-negative",
		},
		{
			name: "nothing to check",
			body: "name: a\ndescription: d\nmodel: m.qml\n",
			want: "assertions list is required",
		},
		{
			name: "empty expect_error",
			body: "name: a\ndescription: d\nmodel: m.qml\nexpect_error: {message: x}\n",
			want: "kind or code is required",
		},
		{
			name: "expect_error with assertions",
			body: "name: a\ndescription: d\nmodel: m.qml\nexpect_error: {code: E401}\nassertions:\n  - type: no_violations\n",
			want: "cannot have assertions",
		},
		{
			name: "unknown assertion type",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertions:\n  - type: magic\n",
			want: `unknown assertion type "magic"`,
		},
		{
			name: "value without equals",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertions:\n  - type: value\n    var: x\n",
			want: "var and equals are required",
		},
		{
			name: "unknown stat",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertions:\n  - type: value\n    var: x\n    equals: 1\n    stat: p99\n",
			want: `unknown stat "p99"`,
		},
		{
			name: "violation without constraint",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertions:\n  - type: violation\n",
			want: "constraint is required",
		},
		{
			name: "negative tolerance",
			body: "name: a\ndescription: d\nmodel: m.qml\nassertions:\n  - type: length\n    var: x\n    equals: 3\n    tolerance: -1\n",
			want: "tolerance must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.body)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios_SortedByFile(t *testing.T) {
	scenarios, err := LoadScenarios(scenarioDir)
	require.NoError(t, err)

	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"cycle_rejected",
		"decay_closed_form",
		"unit_mismatch_rejected",
		"runway_halts",
		"saas_deterministic",
		"saas_monte_carlo",
		"unsourced_param_rejected",
	}, names)
}

func TestLoadScenarios_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.qml"), []byte("model M {}\n"), 0644))
	body := []byte("name: same\ndescription: d\nmodel: m.qml\ngolden: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), body, 0644))

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "same" used by both`)
}
