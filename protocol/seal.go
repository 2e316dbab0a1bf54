// Package protocol produces the message a client stores in a recipient's
// swarm: the plaintext is padded, bound to sender and recipient with an
// Ed25519 signature, sealed anonymously for the recipient's X25519 key and
// wrapped in the protobuf envelope storage nodes and clients exchange.
package protocol

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/sirupsen/logrus"
)

// SessionIDPrefix is the type byte of an X25519-keyed Session ID.
const SessionIDPrefix = 0x05

// SessionID renders an X25519 public key as a Session ID.
func SessionID(x25519PublicKey [crypto.KeySize]byte) string {
	return fmt.Sprintf("%02x%s", SessionIDPrefix, hex.EncodeToString(x25519PublicKey[:]))
}

// StripPrefix decodes a hex recipient key, dropping the leading type byte
// when present.
func StripPrefix(recipientHex string) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte

	raw, err := hex.DecodeString(strings.TrimSpace(recipientHex))
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	if len(raw) == crypto.KeySize+1 {
		raw = raw[1:]
	}
	if len(raw) != crypto.KeySize {
		return key, fmt.Errorf("%w: %d bytes", ErrInvalidRecipient, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// verificationData is what the sender signs. Including the recipient key
// stops a signed message from being re-sealed for someone else.
func verificationData(plaintext, senderEd25519, recipientX25519 []byte) []byte {
	data := make([]byte, 0, len(plaintext)+len(senderEd25519)+len(recipientX25519))
	data = append(data, plaintext...)
	data = append(data, senderEd25519...)
	return append(data, recipientX25519...)
}

// Seal signs plaintext for recipientHex and seals plaintext, the sender's
// Ed25519 public key and the signature in an anonymous sealed box.
func Seal(plaintext []byte, sender *crypto.Identity, recipientHex string) ([]byte, error) {
	recipient, err := StripPrefix(recipientHex)
	if err != nil {
		return nil, err
	}
	if sender == nil || len(sender.Ed25519PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: missing sender key", ErrSigningFailed)
	}

	signature, err := crypto.Sign(
		verificationData(plaintext, sender.Ed25519PublicKey, recipient[:]),
		sender.Ed25519PrivateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	var message bytes.Buffer
	message.Grow(len(plaintext) + ed25519.PublicKeySize + crypto.SignatureSize)
	message.Write(plaintext)
	message.Write(sender.Ed25519PublicKey)
	message.Write(signature[:])

	sealed, err := crypto.SealAnonymous(message.Bytes(), recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	fields := crypto.SecureFieldHash(recipient[:], "recipient")
	fields["function"] = "Seal"
	fields["size"] = len(sealed)
	logrus.WithFields(fields).Debug("Message sealed")

	return sealed, nil
}

// Open reverses Seal and checks the sender's signature against the
// recipient's own key. It returns the plaintext and the sender's Session ID.
func Open(ciphertext []byte, recipient *crypto.Identity) ([]byte, string, error) {
	if recipient == nil {
		return nil, "", fmt.Errorf("%w: missing recipient key", ErrDecryptionFailed)
	}
	message, err := crypto.OpenAnonymous(ciphertext, &recipient.X25519)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	trailer := ed25519.PublicKeySize + crypto.SignatureSize
	if len(message) < trailer {
		return nil, "", fmt.Errorf("%w: message too short", ErrDecryptionFailed)
	}
	plaintextLen := len(message) - trailer
	plaintext := message[:plaintextLen]
	senderKey := message[plaintextLen : plaintextLen+ed25519.PublicKeySize]
	signature := message[plaintextLen+ed25519.PublicKeySize:]

	data := verificationData(plaintext, senderKey, recipient.X25519.Public[:])
	if err := crypto.CheckSignature(data, signature, senderKey); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	senderX25519, err := crypto.Ed25519ToX25519Public(senderKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: sender key: %v", ErrInvalidSignature, err)
	}
	return plaintext, SessionID(senderX25519), nil
}
