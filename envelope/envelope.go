// Package envelope implements the length-prefixed frame that carries a
// ciphertext and its JSON routing metadata between onion hops.
//
// Wire layout (bit-exact, shared with the storage-node network):
//
//	u32 little-endian len(ciphertext) ‖ ciphertext ‖ UTF-8 JSON object
package envelope

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/onionrelay/limits"
)

var (
	// ErrMalformedMetadata is returned when metadata cannot be serialized to,
	// or parsed as, a JSON object. It is not retryable.
	ErrMalformedMetadata = errors.New("envelope: malformed JSON metadata")

	// ErrShortFrame is returned when a frame is smaller than its length prefix.
	ErrShortFrame = errors.New("envelope: frame shorter than length prefix")

	// ErrLengthMismatch is returned when the length prefix points past the end
	// of the frame.
	ErrLengthMismatch = errors.New("envelope: ciphertext length exceeds frame")
)

// EmptyHeaders is the metadata storage nodes expect around a final payload.
var EmptyHeaders = map[string]string{"headers": ""}

// Encode frames ciphertext together with metadata serialized as compact JSON.
func Encode(ciphertext []byte, metadata any) ([]byte, error) {
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	if !isObject(jsonBytes) {
		return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrMalformedMetadata)
	}

	total := limits.EnvelopeLengthPrefix + len(ciphertext) + len(jsonBytes)
	if total > limits.MaxOnionResponse {
		return nil, fmt.Errorf("%w: frame size %d exceeds limit %d", limits.ErrMessageTooLarge, total, limits.MaxOnionResponse)
	}

	frame := make([]byte, limits.EnvelopeLengthPrefix, total)
	binary.LittleEndian.PutUint32(frame, uint32(len(ciphertext)))
	frame = append(frame, ciphertext...)
	frame = append(frame, jsonBytes...)

	return frame, nil
}

// Decode splits a frame into its ciphertext and raw JSON metadata. The
// returned slices alias frame.
func Decode(frame []byte) (ciphertext []byte, metadata json.RawMessage, err error) {
	if len(frame) < limits.EnvelopeLengthPrefix {
		return nil, nil, ErrShortFrame
	}

	n := uint64(binary.LittleEndian.Uint32(frame))
	if n > uint64(len(frame)-limits.EnvelopeLengthPrefix) {
		return nil, nil, fmt.Errorf("%w: prefix %d, frame %d", ErrLengthMismatch, n, len(frame))
	}

	end := limits.EnvelopeLengthPrefix + int(n)
	ciphertext = frame[limits.EnvelopeLengthPrefix:end]
	metadata = frame[end:]

	if !isObject(metadata) || !json.Valid(metadata) {
		return nil, nil, ErrMalformedMetadata
	}

	return ciphertext, metadata, nil
}

// DecodeInto decodes a frame and unmarshals its metadata into v.
func DecodeInto(frame []byte, v any) ([]byte, error) {
	ciphertext, metadata, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return ciphertext, nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) >= 2 && b[0] == '{' && b[len(b)-1] == '}'
}
