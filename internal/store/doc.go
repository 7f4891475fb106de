// Package store provides SQLite-backed durable storage for compiled models,
// runs and calibrations.
//
// The store is an append-only audit log with:
//   - Models: IR documents keyed by content hash, with the parent hash of
//     calibrated derivatives
//   - Runs: execution results with their reproducibility digest
//   - Calibrations: calibration reports linking source and derived models
//
// # Critical Patterns
//
// CP-1: Content-Addressed Idempotency
//   - A model hash is stored once; saving it again returns the first record
//   - A run or calibration id is stored once; later writes are ignored
//
// CP-2: Logical Identity and Time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - One counter is shared by every table so history interleaves correctly
//
// CP-4: Deterministic Query Results
//   - All queries MUST include: ORDER BY seq ASC, id ASC COLLATE BINARY
//   - Ensures identical results across repeated reads
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Model hashes and run digests are computed in internal/ir/hash.go using
// RFC 8785 canonical JSON and SHA-256 with domain separation.
package store
