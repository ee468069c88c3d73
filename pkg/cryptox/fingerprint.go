// Package cryptox holds the digest helpers used to store and look up API
// keys. Only the fingerprint of a key is ever persisted; the plaintext is
// handed to the caller exactly once at issuance.
package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// Hasher is the digest capability injected into services. Modelling it as a
// function (instead of a shared digest instance) keeps it reentrant and lets
// tests count invocations.
type Hasher func(key string) string

// FingerprintKey returns a deterministic SHA-256 fingerprint of an API key,
// encoded with standard base64 (44 chars). Lookups are hash-equality based,
// so the same key always produces the same fingerprint. No salt: the key
// embeds a random 128-bit identifier, which puts precomputation attacks out
// of reach.
func FingerprintKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return base64.StdEncoding.EncodeToString(sum[:])
}
