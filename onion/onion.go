package onion

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/envelope"
	"github.com/opd-ai/onionrelay/limits"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
)

// ErrEmptyPath is returned when Build is given no hops.
var ErrEmptyPath = errors.New("onion: path has no hops")

// EncryptionResult is the output of one layer of encryption.
type EncryptionResult struct {
	Ciphertext         []byte
	EphemeralPublicKey [crypto.KeySize]byte
	SymmetricKey       [crypto.KeySize]byte
}

// Onion is a fully built request ready to be sent to the guard node.
type Onion struct {
	Guard  snode.Node
	Result *EncryptionResult
	// DestinationSymmetricKey decrypts the destination's response.
	DestinationSymmetricKey [crypto.KeySize]byte
}

// Encrypt seals plaintext for the holder of x25519PublicKey under a freshly
// generated ephemeral key pair.
func Encrypt(plaintext []byte, x25519PublicKey [crypto.KeySize]byte) (*EncryptionResult, error) {
	if err := limits.ValidateOnionPayload(plaintext); err != nil {
		return nil, err
	}

	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKeyPair(ephemeral)

	shared, err := crypto.DeriveSharedSecret(x25519PublicKey, ephemeral.Private)
	if err != nil {
		return nil, fmt.Errorf("onion: key agreement: %w", err)
	}
	key := crypto.DeriveOnionKey(shared)
	crypto.ZeroBytes(shared[:])

	ciphertext, err := crypto.EncryptGCM(plaintext, key)
	if err != nil {
		return nil, err
	}

	return &EncryptionResult{
		Ciphertext:         ciphertext,
		EphemeralPublicKey: ephemeral.Public,
		SymmetricKey:       key,
	}, nil
}

// EncryptInnermost produces the layer read by the destination itself.
// Storage nodes and relays expect the payload inside an envelope with empty
// headers; servers receive the payload as is.
func EncryptInnermost(payload []byte, destination snode.Destination) (*EncryptionResult, error) {
	plaintext := payload
	if destination.Kind() != snode.KindServer {
		framed, err := envelope.Encode(payload, envelope.EmptyHeaders)
		if err != nil {
			return nil, err
		}
		plaintext = framed
	}
	return Encrypt(plaintext, destination.X25519())
}

// EncryptHop wraps previous, which is addressed to to, in a layer for from.
// The layer tells from where to forward the request and which ephemeral key
// the next layer was encrypted with.
func EncryptHop(from snode.Node, to snode.Destination, previous *EncryptionResult) (*EncryptionResult, error) {
	params := to.HopParameters()
	params["ephemeral_key"] = hex.EncodeToString(previous.EphemeralPublicKey[:])

	frame, err := envelope.Encode(previous.Ciphertext, params)
	if err != nil {
		return nil, err
	}
	return Encrypt(frame, from.X25519PublicKey)
}

// Build layers payload for destination over path, whose first node is the
// guard. Layers are produced strictly in order from the destination back to
// the guard.
func Build(path []snode.Node, destination snode.Destination, payload []byte) (*Onion, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	result, err := EncryptInnermost(payload, destination)
	if err != nil {
		return nil, fmt.Errorf("onion: innermost layer: %w", err)
	}
	destinationKey := result.SymmetricKey

	next := destination
	for i := len(path) - 1; i >= 0; i-- {
		result, err = EncryptHop(path[i], next, result)
		if err != nil {
			return nil, fmt.Errorf("onion: layer for hop %d: %w", i+1, err)
		}
		next = snode.Relay(path[i])
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Build",
		"hops":        len(path),
		"guard":       path[0].String(),
		"destination": destination.Kind().String(),
		"size":        len(result.Ciphertext),
	}).Debug("Onion request built")

	return &Onion{
		Guard:                   path[0],
		Result:                  result,
		DestinationSymmetricKey: destinationKey,
	}, nil
}

// RequestBody is the frame posted to the guard node.
func (o *Onion) RequestBody() ([]byte, error) {
	return envelope.Encode(o.Result.Ciphertext, map[string]string{
		"ephemeral_key": hex.EncodeToString(o.Result.EphemeralPublicKey[:]),
	})
}
