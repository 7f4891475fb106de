// Package ir provides the intermediate representation of a compiled model.
//
// This package contains the IR data model plus its serialization: indented
// JSON for humans, RFC 8785 canonical JSON for hashing, and an embedded CUE
// schema used to validate documents read back from disk. It imports only
// internal/units, so every other internal package can depend on it.
//
// Key design constraints:
//   - An IR value is immutable once emitted. Calibration produces a new Model
//     with a new hash; the old IR and hash stay valid audit evidence.
//   - The model hash covers the canonicalized node set (everything except the
//     hash field itself).
//   - Floats never appear as JSON numbers in canonical form. Non-integral
//     numbers are rendered as their shortest round-trip decimal string, so the
//     hash does not depend on a JSON library's float formatting.
//   - All JSON tags use snake_case.
package ir
