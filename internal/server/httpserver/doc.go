// Package httpserver provides the HTTP/HTTPS server for SigMesh.
//
// It uses the Go standard library net/http for routing and exposes the
// relay API: community provisioning, membership connections, log entry
// submission and pull, membership sync delivery, and the SSE event
// stream each transport session consumes.
package httpserver
