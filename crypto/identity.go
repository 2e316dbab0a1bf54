package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// SeedSize is the size of the user-facing identity seed.
const SeedSize = 16

// Identity holds the Ed25519 signing keys and the X25519 encryption keys of a
// single user. Both are derived from the same 16-byte seed, so the seed is
// the only secret that needs to be stored.
type Identity struct {
	Seed              [SeedSize]byte
	Ed25519PublicKey  ed25519.PublicKey
	Ed25519PrivateKey ed25519.PrivateKey
	X25519            KeyPair
}

// GenerateIdentity creates an identity from a fresh random seed.
func GenerateIdentity() (*Identity, error) {
	var seed [SeedSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	defer ZeroBytes(seed[:])

	return IdentityFromSeed(seed)
}

// IdentityFromSeed deterministically derives both key pairs from seed. The
// Ed25519 seed is the 16-byte seed followed by 16 zero bytes; the X25519
// keys are the birationally equivalent Montgomery keys.
func IdentityFromSeed(seed [SeedSize]byte) (*Identity, error) {
	edSeed := make([]byte, ed25519.SeedSize)
	copy(edSeed, seed[:])
	defer ZeroBytes(edSeed)

	edPriv := ed25519.NewKeyFromSeed(edSeed)
	edPub := edPriv.Public().(ed25519.PublicKey)

	xPub, err := Ed25519ToX25519Public(edPub)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Seed:              seed,
		Ed25519PublicKey:  edPub,
		Ed25519PrivateKey: edPriv,
	}
	id.X25519.Public = xPub
	id.X25519.Private = ed25519ToX25519Private(edPriv)

	return id, nil
}

// Ed25519ToX25519Public converts an Ed25519 public key to its X25519 form.
func Ed25519ToX25519Public(publicKey []byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	if len(publicKey) != ed25519.PublicKeySize {
		return out, fmt.Errorf("%w: ed25519 public key has %d bytes", ErrInvalidKey, len(publicKey))
	}

	p, err := new(edwards25519.Point).SetBytes(publicKey)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// ed25519ToX25519Private returns the clamped scalar Ed25519 signs with.
func ed25519ToX25519Private(privateKey ed25519.PrivateKey) [KeySize]byte {
	h := sha512.Sum512(privateKey.Seed())
	defer ZeroBytes(h[:])

	var out [KeySize]byte
	copy(out[:], h[:KeySize])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}

// Wipe erases every secret held by the identity. The identity is unusable
// afterwards.
func (id *Identity) Wipe() {
	if id == nil {
		return
	}
	ZeroBytes(id.Seed[:])
	ZeroBytes(id.Ed25519PrivateKey)
	_ = WipeKeyPair(&id.X25519)
}
