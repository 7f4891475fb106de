package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qml/internal/engine"
)

// Scenario defines one model scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the .qml source, relative to the scenario file.
	Model string `yaml:"model"`

	// RunID is the fixed run id. Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Mode is deterministic (default) or monte_carlo.
	Mode engine.Mode `yaml:"mode,omitempty"`

	// Samples, Seed and Workers configure Monte Carlo runs.
	Samples int    `yaml:"samples,omitempty"`
	Seed    uint64 `yaml:"seed,omitempty"`
	Workers int    `yaml:"workers,omitempty"`

	// ExpectError names the error the model must be rejected with.
	ExpectError *ErrorExpectation `yaml:"expect_error,omitempty"`

	// Assertions validate the run result.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Golden compares the result snapshot with testdata/golden/<name>.golden.
	Golden bool `yaml:"golden,omitempty"`
}

// ErrorExpectation matches a rejected model by error kind and code.
type ErrorExpectation struct {
	Kind string `yaml:"kind"`
	Code string `yaml:"code"`

	// Message is an optional substring of the error text.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the run result.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Var names the variable (value, length, percentile_order).
	Var string `yaml:"var,omitempty"`

	// Constraint names the constraint (violation, violation_rate).
	Constraint string `yaml:"constraint,omitempty"`

	// T is the time step; absent for scalar vars.
	T *int `yaml:"t,omitempty"`

	// Stat selects a Monte Carlo statistic (mean, median, p5, p25, p75,
	// p95, stddev) for value assertions.
	Stat string `yaml:"stat,omitempty"`

	// Equals is the expected number (value, violation_rate, length).
	Equals *float64 `yaml:"equals,omitempty"`

	// Tolerance is the absolute tolerance for Equals. Defaults to 1e-9.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Status is the expected run status (status).
	Status string `yaml:"status,omitempty"`

	// Message is a substring of the violation message (violation).
	Message string `yaml:"message,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus          = "status"
	AssertValue           = "value"
	AssertLength          = "length"
	AssertViolation       = "violation"
	AssertNoViolations    = "no_violations"
	AssertViolationRate   = "violation_rate"
	AssertPercentileOrder = "percentile_order"
	AssertReproducible    = "reproducible"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The model path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, p)
		}
		seen[s.Name] = p
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}

	switch s.Mode {
	case "":
		s.Mode = engine.Deterministic
	case engine.Deterministic, engine.MonteCarlo:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.Samples < 0 || s.Workers < 0 {
		return fmt.Errorf("samples and workers must be non-negative")
	}

	if s.ExpectError != nil {
		if s.ExpectError.Kind == "" && s.ExpectError.Code == "" {
			return fmt.Errorf("expect_error: kind or code is required")
		}
		if len(s.Assertions) > 0 {
			return fmt.Errorf("expect_error scenarios cannot have assertions")
		}
		return nil
	}

	if len(s.Assertions) == 0 && !s.Golden {
		return fmt.Errorf("assertions list is required unless golden is set")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	case AssertValue:
		if a.Var == "" || a.Equals == nil {
			return fmt.Errorf("assertions[%d]: var and equals are required for value", index)
		}
		if a.Stat != "" {
			if _, ok := statField(a.Stat); !ok {
				return fmt.Errorf("assertions[%d]: unknown stat %q", index, a.Stat)
			}
		}
	case AssertLength:
		if a.Var == "" || a.Equals == nil {
			return fmt.Errorf("assertions[%d]: var and equals are required for length", index)
		}
	case AssertViolation:
		if a.Constraint == "" {
			return fmt.Errorf("assertions[%d]: constraint is required for violation", index)
		}
	case AssertViolationRate:
		if a.Constraint == "" || a.Equals == nil {
			return fmt.Errorf("assertions[%d]: constraint and equals are required for violation_rate", index)
		}
	case AssertPercentileOrder:
		if a.Var == "" {
			return fmt.Errorf("assertions[%d]: var is required for percentile_order", index)
		}
	case AssertNoViolations, AssertReproducible:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}
	return nil
}
