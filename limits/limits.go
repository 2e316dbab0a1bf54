// Package limits provides centralized size limits for onion requests and
// stored messages, so every layer enforces the same bounds.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxOnionPayload is the largest plaintext payload that may be wrapped in
	// an onion request (10 MiB).
	MaxOnionPayload = 10 * 1024 * 1024

	// MaxOnionResponse bounds a response read back from a guard node. It
	// leaves room for base64 expansion and the AEAD overhead.
	MaxOnionResponse = MaxOnionPayload*4/3 + 1024

	// MaxStoreData is the largest base64 "data" value a storage node accepts
	// in a store request.
	MaxStoreData = 76800

	// GCMOverhead is the size added by one AES-GCM layer: a 12-byte IV
	// prefix and a 16-byte tag.
	GCMOverhead = 12 + 16

	// SealedBoxOverhead is the ephemeral key plus Poly1305 tag added by a
	// sealed box.
	SealedBoxOverhead = 32 + 16

	// PaddingBlockSize is the block length plaintexts are padded to before
	// sealing.
	PaddingBlockSize = 160

	// EnvelopeLengthPrefix is the size of the little-endian length prefix of
	// an onion envelope.
	EnvelopeLengthPrefix = 4
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateOnionPayload validates a payload about to be wrapped in onion layers.
func ValidateOnionPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrMessageEmpty
	}
	if len(payload) > MaxOnionPayload {
		return fmt.Errorf("%w: onion payload size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxOnionPayload)
	}
	return nil
}

// ValidateStoreData validates the base64 data field of a store request.
func ValidateStoreData(data string) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxStoreData {
		return fmt.Errorf("%w: store data size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxStoreData)
	}
	return nil
}

// ValidateResponse validates a raw response body read from the network.
// Unlike the other checks an empty body is allowed.
func ValidateResponse(body []byte) error {
	if len(body) > MaxOnionResponse {
		return fmt.Errorf("%w: response size %d exceeds limit %d", ErrMessageTooLarge, len(body), MaxOnionResponse)
	}
	return nil
}
