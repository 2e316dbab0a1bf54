package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// SaltSize is the Argon2id salt size used by SealSecret.
	SaltSize = 16

	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveKEK derives a key-encryption key from a passphrase and salt using Argon2id.
func DeriveKEK(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeySize)
}

// SealSecret encrypts a secret under a passphrase. The result is
// salt‖nonce‖ciphertext and is safe to write to disk.
func SealSecret(passphrase string, secret []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	kek := DeriveKEK(passphrase, salt)
	defer ZeroBytes(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	out := make([]byte, 0, SaltSize+len(nonce)+len(secret)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret, salt), nil
}

// OpenSecret reverses SealSecret. A wrong passphrase yields ErrAuthenticationFailed.
func OpenSecret(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < SaltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, errors.New("sealed secret too short")
	}

	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[SaltSize+chacha20poly1305.NonceSizeX:]

	kek := DeriveKEK(passphrase, salt)
	defer ZeroBytes(kek)

	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
