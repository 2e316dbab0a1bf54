package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// GCMNonceSize is the size of the AES-GCM initialisation vector.
	GCMNonceSize = 12

	// GCMTagSize is the size of the AES-GCM authentication tag.
	GCMTagSize = 16

	// MaxMessageSize bounds any single AEAD operation (10 MiB).
	MaxMessageSize = 10 * 1024 * 1024
)

// onionKeySalt is the HMAC key every storage node uses to turn an X25519
// shared secret into an AES-256 key.
var onionKeySalt = []byte("LOKI")

// DeriveOnionKey turns an X25519 shared secret into a symmetric AES-256 key.
func DeriveOnionKey(sharedSecret [KeySize]byte) [KeySize]byte {
	mac := hmac.New(sha256.New, onionKeySalt)
	mac.Write(sharedSecret[:])

	var key [KeySize]byte
	copy(key[:], mac.Sum(nil))
	return key
}

// GenerateNonce creates a random AES-GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, GCMNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return nonce, nil
}

// SealGCM encrypts plaintext with AES-256-GCM and returns ciphertext‖tag.
func SealGCM(plaintext []byte, key [KeySize]byte, nonce []byte) ([]byte, error) {
	if len(plaintext) > MaxMessageSize {
		return nil, errors.New("message too large")
	}

	aead, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}

	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// EncryptGCM encrypts plaintext under a fresh random nonce and returns
// nonce‖ciphertext‖tag, the layout storage nodes expect.
func EncryptGCM(plaintext []byte, key [KeySize]byte) ([]byte, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	sealed, err := SealGCM(plaintext, key, nonce)
	if err != nil {
		return nil, err
	}

	return append(nonce, sealed...), nil
}

func newGCM(key [KeySize]byte, nonce []byte) (cipher.AEAD, error) {
	if len(nonce) != GCMNonceSize {
		return nil, fmt.Errorf("invalid nonce size %d", len(nonce))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return cipher.NewGCM(block)
}
