// Package handler provides the HTTP request handlers for SigMesh.
//
// Handlers decode JSON request bodies into wire DTOs, call the domain
// services, and write wire envelopes back. The SSE handler streams
// server-initiated envelopes to attached transport sessions.
package handler
