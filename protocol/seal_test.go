package protocol

import (
	"encoding/hex"
	"testing"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return id
}

func TestSealOpenRoundTrip(t *testing.T) {
	sender := newIdentity(t)
	recipient := newIdentity(t)
	plaintext := []byte("hello over the onion")

	for _, recipientHex := range []string{
		SessionID(recipient.X25519.Public),
		hex.EncodeToString(recipient.X25519.Public[:]),
	} {
		sealed, err := Seal(plaintext, sender, recipientHex)
		require.NoError(t, err)
		assert.Len(t, sealed, len(plaintext)+32+64+crypto.SealedBoxOverhead)

		opened, from, err := Open(sealed, recipient)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
		assert.Equal(t, SessionID(sender.X25519.Public), from)
	}
}

func TestSealedSignatureIsBoundToRecipient(t *testing.T) {
	sender := newIdentity(t)
	alice := newIdentity(t)
	bob := newIdentity(t)

	sealed, err := Seal([]byte("for alice only"), sender, SessionID(alice.X25519.Public))
	require.NoError(t, err)

	// Alice opens the message and re-seals the signed contents for Bob.
	inner, err := crypto.OpenAnonymous(sealed, &alice.X25519)
	require.NoError(t, err)
	resealed, err := crypto.SealAnonymous(inner, bob.X25519.Public)
	require.NoError(t, err)

	_, _, err = Open(resealed, bob)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// The signature itself fails against Bob's key.
	n := len(inner) - 96
	data := verificationData(inner[:n], inner[n:n+32], bob.X25519.Public[:])
	assert.ErrorIs(t, crypto.CheckSignature(data, inner[n+32:], inner[n:n+32]), crypto.ErrSignatureMismatch)
}

func TestOpenWrongRecipient(t *testing.T) {
	sender := newIdentity(t)
	sealed, err := Seal([]byte("x"), sender, SessionID(newIdentity(t).X25519.Public))
	require.NoError(t, err)

	_, _, err = Open(sealed, newIdentity(t))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenNilRecipient(t *testing.T) {
	sender := newIdentity(t)
	sealed, err := Seal([]byte("x"), sender, SessionID(newIdentity(t).X25519.Public))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, _, err = Open(sealed, nil)
	})
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealErrors(t *testing.T) {
	sender := newIdentity(t)

	tests := []struct {
		name      string
		sender    *crypto.Identity
		recipient string
		want      error
	}{
		{"not hex", sender, "zz", ErrInvalidRecipient},
		{"short key", sender, "05abcd", ErrInvalidRecipient},
		{"missing sender", nil, SessionID(sender.X25519.Public), ErrSigningFailed},
		{"wiped sender", &crypto.Identity{}, SessionID(sender.X25519.Public), ErrSigningFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Seal([]byte("x"), tt.sender, tt.recipient)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStripPrefix(t *testing.T) {
	id := newIdentity(t)
	sessionID := SessionID(id.X25519.Public)
	assert.Len(t, sessionID, 66)
	assert.Equal(t, "05", sessionID[:2])

	key, err := StripPrefix(sessionID)
	require.NoError(t, err)
	assert.Equal(t, id.X25519.Public, key)
}
