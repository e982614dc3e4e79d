// Package memory provides the in-memory Store implementation.
//
// It backs unit tests and the --storage memory mode. Nothing survives a
// restart; the ordering and idempotence guarantees match the Badger store.
package memory
