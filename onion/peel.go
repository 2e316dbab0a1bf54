package onion

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/envelope"
)

// ErrMalformedLayer is returned when a received frame lacks a usable
// ephemeral key or routing parameters.
var ErrMalformedLayer = errors.New("onion: malformed layer")

// Layer is one decrypted onion layer as seen by the node it was built for.
type Layer struct {
	// SymmetricKey is the key shared with the sender of this layer. The
	// final destination uses it to encrypt its response.
	SymmetricKey [crypto.KeySize]byte
	Plaintext    []byte
}

// HopParams are the routing parameters a layer carries for the node that
// decrypts it.
type HopParams struct {
	Destination  string  `json:"destination,omitempty"`
	EphemeralKey string  `json:"ephemeral_key,omitempty"`
	Host         string  `json:"host,omitempty"`
	Target       string  `json:"target,omitempty"`
	Method       string  `json:"method,omitempty"`
	Protocol     string  `json:"protocol,omitempty"`
	Port         uint16  `json:"port,omitempty"`
	Headers      *string `json:"headers,omitempty"`
}

// Hop is a decrypted layer split into its inner ciphertext (or, for the
// destination, its payload) and its routing parameters.
type Hop struct {
	Ciphertext []byte
	Params     HopParams
}

// Peel removes one layer from frame using the node's X25519 private key.
// frame is the body a node receives: an envelope whose metadata names the
// ephemeral key the layer was encrypted with.
func Peel(frame []byte, privateKey [crypto.KeySize]byte) (*Layer, error) {
	var meta struct {
		EphemeralKey string `json:"ephemeral_key"`
	}
	ciphertext, err := envelope.DecodeInto(frame, &meta)
	if err != nil {
		return nil, err
	}

	ephemeral, err := decodeEphemeral(meta.EphemeralKey)
	if err != nil {
		return nil, err
	}

	shared, err := crypto.DeriveSharedSecret(ephemeral, privateKey)
	if err != nil {
		return nil, fmt.Errorf("onion: key agreement: %w", err)
	}
	key := crypto.DeriveOnionKey(shared)
	crypto.ZeroBytes(shared[:])

	plaintext, err := crypto.DecryptGCM(ciphertext, key)
	if err != nil {
		return nil, err
	}
	return &Layer{SymmetricKey: key, Plaintext: plaintext}, nil
}

// Route parses the layer as an envelope. It fails for server destinations,
// whose innermost layer is the bare payload.
func (l *Layer) Route() (*Hop, error) {
	hop := &Hop{}
	ciphertext, err := envelope.DecodeInto(l.Plaintext, &hop.Params)
	if err != nil {
		return nil, err
	}
	hop.Ciphertext = ciphertext
	return hop, nil
}

// IsFinal reports whether the layer was addressed to the node that peeled it.
func (h *Hop) IsFinal() bool {
	return h.Params.Destination == "" && h.Params.Host == ""
}

// ForwardFrame is the body to send to the next relay named by
// Params.Destination.
func (h *Hop) ForwardFrame() ([]byte, error) {
	if h.IsFinal() || h.Params.EphemeralKey == "" {
		return nil, fmt.Errorf("%w: nothing to forward", ErrMalformedLayer)
	}
	return envelope.Encode(h.Ciphertext, map[string]string{"ephemeral_key": h.Params.EphemeralKey})
}

func decodeEphemeral(s string) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte
	if len(s) != hex.EncodedLen(crypto.KeySize) {
		return key, fmt.Errorf("%w: ephemeral key has %d hex characters", ErrMalformedLayer, len(s))
	}
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return key, fmt.Errorf("%w: ephemeral key: %v", ErrMalformedLayer, err)
	}
	return key, nil
}
