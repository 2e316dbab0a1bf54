// Package crypto implements the primitives the onion transport is built on.
//
// Every function is a pure operation over byte buffers with no hidden
// state. Failures that indicate tampering or corrupted keys are reported as
// distinct, non-retryable errors ([ErrAuthenticationFailed],
// [ErrSignatureMismatch], [ErrKeyGeneration], [ErrInvalidKey]) and are never
// turned into empty results.
//
// # Key Agreement and Onion Keys
//
// Each onion layer uses a fresh X25519 key pair. The shared secret with the
// hop's X25519 key is turned into an AES-256 key with [DeriveOnionKey]:
//
//	shared, _ := crypto.DeriveSharedSecret(hopPublicKey, ephemeral.Private)
//	key := crypto.DeriveOnionKey(shared)
//	ciphertext, _ := crypto.EncryptGCM(plaintext, key) // nonce‖ct‖tag
//
// # Identities
//
// A user identity is derived from a 16-byte seed. The Ed25519 signing key
// and the X25519 encryption key are birationally equivalent, so a peer's
// X25519 key can be computed from its Ed25519 key with
// [Ed25519ToX25519Public]:
//
//	id, _ := crypto.IdentityFromSeed(seed)
//	defer id.Wipe()
//
// # Sealed Boxes and Signatures
//
// [SealAnonymous] and [OpenAnonymous] wrap NaCl sealed boxes. [Sign] and
// [Verify] produce and check detached Ed25519 signatures; [CheckSignature]
// reports a mismatch as [ErrSignatureMismatch].
//
// # Secrets at Rest
//
// [SealSecret] encrypts a seed under an Argon2id-derived key with
// XChaCha20-Poly1305. [Hash] is BLAKE2b-256.
//
// # Secure Memory Handling
//
// Sensitive buffers should be wiped after use:
//
//	defer crypto.ZeroBytes(sharedSecret[:])
//	defer crypto.WipeKeyPair(keyPair)
package crypto
