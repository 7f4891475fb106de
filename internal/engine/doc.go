// Package engine executes compiled models.
//
// ARCHITECTURE:
//
// Shared, read-only state:
// New resolves the evaluation plan, builds the joint parameter
// distribution and compiles every IR expression into a closure. None of it
// is mutated afterwards, so samples share it without locking.
//
// Per-sample state:
// Each sample owns a frame (param values, scalar values, one slice per
// series) and a constraint monitor. Series values are appended step by
// step; a value exists exactly when its step has been computed, which is
// how invalid lookbacks are detected at runtime.
//
// Evaluation order:
//  1. Params: central values (deterministic) or one joint copula draw.
//  2. Scalar vars, once, in plan order.
//  3. For t = 0..horizon: series vars in plan order (Init at t=0 when
//     present), then constraints. A fatal violation ends the sample.
//
// CRITICAL PATTERNS:
//
// Determinism:
// Sample i draws from dist.NewRNG(seed, i) and writes only to its own
// output slot. Aggregation walks samples in index order. Results are
// byte-identical for any worker count.
//
// Cancellation:
// The context is checked between samples, never mid-sample. A cancelled
// run returns an error and no partial aggregates.
package engine
