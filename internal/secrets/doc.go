// Package secrets seals server-side community key material at rest.
//
// Values are encrypted with an AEAD cipher (pkg/crypto/adaptive) under a
// vault key that is either supplied directly or derived from a passphrase
// with Argon2id. The derivation salt is persisted alongside the sealed
// values so restarts reproduce the same key.
package secrets
