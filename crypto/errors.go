package crypto

import "errors"

// The errors below are never retryable: they indicate corrupted key material,
// tampering, or a peer holding different keys than the ones it advertised.
var (
	// ErrAuthenticationFailed is returned when an AEAD tag or sealed box does not open.
	ErrAuthenticationFailed = errors.New("crypto: message authentication failed")

	// ErrSignatureMismatch is returned when an Ed25519 signature does not verify.
	ErrSignatureMismatch = errors.New("crypto: signature verification failed")

	// ErrKeyGeneration is returned when key material cannot be generated or derived.
	ErrKeyGeneration = errors.New("crypto: key generation failed")

	// ErrInvalidKey is returned for keys of the wrong size or low-order points.
	ErrInvalidKey = errors.New("crypto: invalid key")
)
