package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromSeedDeterministic(t *testing.T) {
	seed := [SeedSize]byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	a, err := IdentityFromSeed(seed)
	require.NoError(t, err)
	b, err := IdentityFromSeed(seed)
	require.NoError(t, err)

	assert.Equal(t, a.Ed25519PublicKey, b.Ed25519PublicKey)
	assert.Equal(t, a.X25519, b.X25519)

	// The Ed25519 seed is the user seed padded with zeros.
	padded := make([]byte, ed25519.SeedSize)
	copy(padded, seed[:])
	assert.Equal(t, ed25519.NewKeyFromSeed(padded).Public(), a.Ed25519PublicKey)
}

func TestIdentityKeysAreEquivalent(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	// The converted private scalar must produce the converted public key.
	derived, err := FromSecretKey(id.X25519.Private)
	require.NoError(t, err)
	assert.Equal(t, id.X25519.Public, derived.Public)

	converted, err := Ed25519ToX25519Public(id.Ed25519PublicKey)
	require.NoError(t, err)
	assert.Equal(t, id.X25519.Public, converted)

	// Both identities agree on a shared secret through the converted keys.
	peer, err := GenerateIdentity()
	require.NoError(t, err)
	s1, err := DeriveSharedSecret(peer.X25519.Public, id.X25519.Private)
	require.NoError(t, err)
	s2, err := DeriveSharedSecret(id.X25519.Public, peer.X25519.Private)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestEd25519ToX25519PublicRejectsBadInput(t *testing.T) {
	_, err := Ed25519ToX25519Public([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKey)

	// y = 2 is not on the curve.
	bad := make([]byte, 32)
	bad[0] = 2
	_, err = Ed25519ToX25519Public(bad)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestIdentityWipe(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	id.Wipe()

	assert.Equal(t, [SeedSize]byte{}, id.Seed)
	assert.Equal(t, [KeySize]byte{}, id.X25519.Private)
	assert.Equal(t, make([]byte, ed25519.PrivateKeySize), []byte(id.Ed25519PrivateKey))

	var nilID *Identity
	assert.NotPanics(t, nilID.Wipe)
}

func TestSealOpenSecret(t *testing.T) {
	secret := []byte("0123456789abcdef")

	sealed, err := SealSecret("correct horse", secret)
	require.NoError(t, err)

	opened, err := OpenSecret("correct horse", sealed)
	require.NoError(t, err)
	assert.Equal(t, secret, opened)

	_, err = OpenSecret("battery staple", sealed)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = SealSecret("", secret)
	assert.Error(t, err)

	_, err = OpenSecret("correct horse", sealed[:10])
	assert.Error(t, err)
}
