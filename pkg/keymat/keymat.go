package keymat

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Prefix marks a plaintext key material string.
const Prefix = "smk_"

// DefaultLength is the default key material length in bytes.
const DefaultLength = 32

// Generate generates cryptographically secure community key material.
//
// The returned string is Prefix plus Base64 RawURL encoded random bytes.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates key material with the given byte length.
func GenerateWithLength(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// IsKeyMaterial reports whether s looks like plaintext key material.
func IsKeyMaterial(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Fingerprint computes the hex SHA-256 digest of key material. The
// digest is safe to log and store for comparison.
func Fingerprint(material string) string {
	h := sha256.Sum256([]byte(material))
	return hex.EncodeToString(h[:])
}

// FingerprintBytes computes the hex SHA-256 digest of raw key bytes.
func FingerprintBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Verify checks key material against an expected fingerprint.
//
// Uses constant-time comparison to prevent timing attacks.
func Verify(material, expectedFingerprint string) bool {
	actual := Fingerprint(material)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedFingerprint)) == 1
}
