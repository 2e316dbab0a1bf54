// Package limits provides centralized size constants and validation
// functions for the onion transport.
//
// # Size Hierarchy
//
//   - MaxStoreData (76800 bytes): the largest base64 message a storage node
//     accepts in a single store request.
//   - MaxOnionPayload (10 MiB): the largest plaintext that may be wrapped
//     in onion layers.
//   - MaxOnionResponse: the largest response body read back from a guard.
//
// Overhead constants (GCMOverhead, SealedBoxOverhead, EnvelopeLengthPrefix)
// let callers predict the size of a request before building it.
//
// # Validation Functions
//
// Each validation function checks for empty input and size violations:
//
//	if err := limits.ValidateOnionPayload(payload); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
