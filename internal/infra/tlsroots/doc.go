// Package tlsroots handles the server's TLS material.
//
// Pool collects trusted root CAs from the system store, PEM files, or
// directories, and builds tls.Config values from them; the CLI uses it
// to talk to servers behind private CAs. Watcher serves the server's
// own certificate and reloads it from disk when the files change, so
// certificate rotation needs no restart.
package tlsroots
