// Package storage defines the persistence contracts for SigMesh and the
// Badger-backed implementation.
//
// Three concerns share one store: the append-only log of encrypted entries
// (content-addressed, paginated by a stable (received_at, id) order), the
// community records with their serialized membership ledgers, and sealed
// server-side secrets. The in-memory variant in storage/memory backs unit
// tests and the --storage memory mode.
package storage
