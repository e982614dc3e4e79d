// Package domain defines the core domain models for SigMesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Community: group record with its membership ledger blob
//   - Connection: per-user membership connection state machine
//   - LogEntry: content-addressed encrypted log entry
//   - Cursor: stable pagination position over the entry log
//   - Errors: domain-specific error definitions
//
// All entities implement validation and deep copying so stores can
// hand out safe snapshots.
package domain
