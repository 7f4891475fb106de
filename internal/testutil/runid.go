package testutil

// FixedRunID returns the same run identifier every time.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this
// generator never runs out, which suits harness scenarios where every run
// of a model shares the run_id written in the scenario YAML.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID string

// DefaultRunID is used when a scenario names no run_id.
const DefaultRunID = "test-run-default"

// NewFixedRunID returns a generator for id, or DefaultRunID if id is empty.
func NewFixedRunID(id string) FixedRunID {
	if id == "" {
		return DefaultRunID
	}
	return FixedRunID(id)
}

// Generate returns the fixed id.
//
// Implements engine.RunIDGenerator.
func (g FixedRunID) Generate() string {
	return string(g)
}
