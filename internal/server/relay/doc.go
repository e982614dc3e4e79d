// Package relay owns the transport hub: the bridge between the domain
// services' fan-out and the per-session delivery streams.
//
// Each attached transport session gets a bounded queue. Sends never
// block the caller; a full queue drops the frame, because clients
// recover missed entries through the pull path.
package relay
