package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// SealedBoxOverhead is the number of bytes SealAnonymous adds to a message.
const SealedBoxOverhead = box.AnonymousOverhead

// SealAnonymous encrypts message to recipient with an ephemeral sender key,
// so only the recipient's key pair is needed to open it.
func SealAnonymous(message []byte, recipient [KeySize]byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("empty message")
	}

	out, err := box.SealAnonymous(nil, message, &recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return out, nil
}

// OpenAnonymous decrypts a sealed box addressed to kp.
func OpenAnonymous(sealed []byte, kp *KeyPair) ([]byte, error) {
	if kp == nil {
		return nil, errors.New("nil key pair")
	}
	if len(sealed) < SealedBoxOverhead {
		return nil, ErrAuthenticationFailed
	}

	out, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
	if !ok {
		NewLogger("OpenAnonymous").
			WithField("sealed_size", len(sealed)).
			Debug("Sealed box did not open")
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}
