// Package harness runs model scenarios: executable contracts that compile a
// model, execute it and check the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: ../models/decay.qml
//	run_id: decay-1
//	mode: monte_carlo
//	samples: 500
//	seed: 42
//	workers: 4
//	golden: true
//	assertions:
//	  - type: value
//	    var: x
//	    t: 10
//	    equals: 598.7369
//	    tolerance: 0.0001
//	  - type: percentile_order
//	    var: x
//
// A scenario whose model must be rejected names the expected error instead
// of assertions:
//
//	expect_error:
//	  kind: CircularDependencyError
//	  code: E401
//
// # Assertion Types
//
//   - status: the run status equals the given value
//   - value: a var's value (or a Monte Carlo statistic) at step t
//   - length: how many steps a time series reached before any halt
//   - violation: a constraint violation with the given t and message exists
//   - no_violations: no constraint fired
//   - violation_rate: a constraint's violating-sample fraction
//   - percentile_order: p5 <= p25 <= median <= p75 <= p95 at every step
//   - reproducible: a rerun on one worker yields byte-identical JSON
//
// # Deterministic Testing
//
// Every run uses a fixed run id (testutil.FixedRunID) and, for Monte Carlo,
// the scenario seed, so results and golden snapshots are reproducible.
// Each scenario's run is recorded in a fresh in-memory store.
package harness
