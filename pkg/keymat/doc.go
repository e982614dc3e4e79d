// Package keymat provides community key material generation and
// fingerprinting utilities.
//
// Key material strings carry the smk_ prefix so logging can recognize
// and redact them. Fingerprints are safe to log and compare.
package keymat
