package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents a detached Ed25519 signature.
type Signature [SignatureSize]byte

// Sign creates a detached Ed25519 signature for a message.
func Sign(message []byte, privateKey ed25519.PrivateKey) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	if len(privateKey) != ed25519.PrivateKeySize {
		return Signature{}, fmt.Errorf("%w: ed25519 private key has %d bytes", ErrInvalidKey, len(privateKey))
	}

	var signature Signature
	copy(signature[:], ed25519.Sign(privateKey, message))

	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature []byte, publicKey []byte) (bool, error) {
	if len(message) == 0 {
		return false, errors.New("empty message")
	}

	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: ed25519 public key has %d bytes", ErrInvalidKey, len(publicKey))
	}

	if len(signature) != SignatureSize {
		return false, nil
	}

	return ed25519.Verify(publicKey, message, signature), nil
}

// CheckSignature is Verify with a mismatch reported as ErrSignatureMismatch.
func CheckSignature(message []byte, signature []byte, publicKey []byte) error {
	ok, err := Verify(message, signature, publicKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}
