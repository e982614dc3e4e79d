// Package client provides the HTTP client for sigmesh-cli.
//
// It speaks the wire envelope protocol of sigmesh-server: every request
// and response travels inside a wire.Envelope, and the transport session
// ID rides in the X-Sigmesh-Transport header.
package client
