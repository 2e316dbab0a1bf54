package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes the X25519 shared secret between a peer's
// public key and our private key.
func DeriveSharedSecret(peerPublicKey, privateKey [KeySize]byte) ([KeySize]byte, error) {
	NewLogger("DeriveSharedSecret").
		WithFields(SecureFieldHash(peerPublicKey[:], "peer_key")).
		Debug("Computing shared secret using ECDH")

	// Work on a copy so the caller's key is never touched by the wipe below.
	var privateKeyCopy [KeySize]byte
	copy(privateKeyCopy[:], privateKey[:])
	defer ZeroBytes(privateKeyCopy[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], peerPublicKey[:])
	if err != nil {
		NewLogger("DeriveSharedSecret").
			WithError(err, "x25519").
			Warn("X25519 computation failed")
		return [KeySize]byte{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var result [KeySize]byte
	copy(result[:], sharedSecret)
	ZeroBytes(sharedSecret)

	return result, nil
}
