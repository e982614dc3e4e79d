// Package service provides the domain services for SigMesh.
//
// Registry owns the in-memory community table, connection lifecycle, and
// idle eviction. SyncService runs the log replication paths: permission
// gated writes with fan-out and byte-budget-aware paginated reads. Both
// speak to storage through the contracts in internal/storage and to the
// membership engine through internal/core/ledger.
package service
