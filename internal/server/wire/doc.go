// Package wire defines the transport envelope and the JSON payload
// shapes exchanged with clients.
//
// Every response body and every server-initiated event is an Envelope:
// a timestamp, a coarse status, an optional reason, and an optional
// payload. Entry bytes travel base64-encoded inside payloads.
package wire
