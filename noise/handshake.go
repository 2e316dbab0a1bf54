package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/onionrelay/crypto"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrWrongTurn indicates a message was written or read out of order
	ErrWrongTurn = errors.New("handshake message out of order")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator starts the handshake and knows the responder's static key
	Initiator HandshakeRole = iota
	// Responder answers with its static key
	Responder
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// NKHandshake runs the Noise NK pattern.
type NKHandshake struct {
	role       HandshakeRole
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
	turn       int
}

// NewNKInitiator starts a handshake with the holder of responderStatic.
func NewNKInitiator(responderStatic []byte) (*NKHandshake, error) {
	if len(responderStatic) != crypto.KeySize {
		return nil, fmt.Errorf("responder static key must be 32 bytes, got %d", len(responderStatic))
	}

	peer := make([]byte, crypto.KeySize)
	copy(peer, responderStatic)

	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNK,
		Initiator:   true,
		PeerStatic:  peer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	return &NKHandshake{role: Initiator, state: state}, nil
}

// NewNKResponder prepares to answer handshakes addressed to the key pair
// derived from staticPrivKey.
func NewNKResponder(staticPrivKey []byte) (*NKHandshake, error) {
	if len(staticPrivKey) != crypto.KeySize {
		return nil, fmt.Errorf("static private key must be 32 bytes, got %d", len(staticPrivKey))
	}

	var priv [crypto.KeySize]byte
	copy(priv[:], staticPrivKey)
	keyPair, err := crypto.FromSecretKey(priv)
	crypto.ZeroBytes(priv[:])
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, crypto.KeySize),
		Public:  make([]byte, crypto.KeySize),
	}
	copy(staticKey.Private, keyPair.Private[:])
	copy(staticKey.Public, keyPair.Public[:])
	_ = crypto.WipeKeyPair(keyPair)

	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeNK,
		Initiator:     false,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	return &NKHandshake{role: Responder, state: state}, nil
}

// WriteMessage produces the next handshake message. The initiator writes
// first; the responder writes after reading it and is then complete.
func (h *NKHandshake) WriteMessage(payload []byte) ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}
	if !h.myTurn() {
		return nil, ErrWrongTurn
	}

	message, cs1, cs2, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("handshake write failed: %w", err)
	}
	h.turn++
	h.finish(cs1, cs2)
	return message, nil
}

// ReadMessage consumes the peer's handshake message and returns its payload.
func (h *NKHandshake) ReadMessage(message []byte) ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}
	if h.myTurn() {
		return nil, ErrWrongTurn
	}

	payload, cs1, cs2, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("handshake read failed: %w", err)
	}
	h.turn++
	h.finish(cs1, cs2)
	return payload, nil
}

func (h *NKHandshake) myTurn() bool {
	return (h.turn%2 == 0) == (h.role == Initiator)
}

// finish stores the cipher states once the pattern is done. cs1 protects
// initiator to responder traffic and cs2 the reverse direction.
func (h *NKHandshake) finish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if h.role == Initiator {
		h.sendCipher, h.recvCipher = cs1, cs2
	} else {
		h.sendCipher, h.recvCipher = cs2, cs1
	}
	h.complete = true
}

// IsComplete returns true if handshake is finished and cipher states are available.
func (h *NKHandshake) IsComplete() bool {
	return h.complete
}

// GetCipherStates returns the send and receive cipher states after successful handshake.
func (h *NKHandshake) GetCipherStates() (send, recv *noise.CipherState, err error) {
	if !h.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	return h.sendCipher, h.recvCipher, nil
}

// Role returns the side of the handshake this state plays.
func (h *NKHandshake) Role() HandshakeRole {
	return h.role
}
