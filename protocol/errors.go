package protocol

import "errors"

var (
	// ErrSigningFailed means the sender's key could not sign. Not retryable.
	ErrSigningFailed = errors.New("protocol: signing failed")

	// ErrEncryptionFailed means sealing for the recipient failed. Not
	// retryable.
	ErrEncryptionFailed = errors.New("protocol: encryption failed")

	// ErrDecryptionFailed means the sealed box could not be opened with the
	// recipient's key.
	ErrDecryptionFailed = errors.New("protocol: decryption failed")

	// ErrInvalidSignature means the sender signature does not cover this
	// plaintext, sender and recipient.
	ErrInvalidSignature = errors.New("protocol: invalid sender signature")

	// ErrInvalidRecipient is returned for recipient keys that are not a
	// 32-byte X25519 key, optionally prefixed with the Session ID type byte.
	ErrInvalidRecipient = errors.New("protocol: invalid recipient key")

	// ErrInvalidPaddedMessage is returned when a plaintext has no padding
	// terminator.
	ErrInvalidPaddedMessage = errors.New("protocol: invalid padded message")

	// ErrMalformedEnvelope is returned when a wrapped message cannot be
	// parsed.
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
)
