// Package ledger defines the narrow contract to the external membership
// engine: the component that verifies signatures, merges concurrent ledger
// operations, and derives keys for a community's sigchain.
//
// The server never interprets ledger bytes itself. It loads blobs into
// opaque handles, relays protocol messages between peers and the engine,
// and consumes the lifecycle events that drive each membership connection's
// state machine. Any implementation satisfying Engine is interchangeable;
// StaticEngine ships as a deterministic stand-in for tests and local runs.
package ledger
