package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of a Hash digest.
const HashSize = blake2b.Size256

// Hash returns the unkeyed BLAKE2b-256 digest of the concatenated inputs.
func Hash(data ...[]byte) [HashSize]byte {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	for _, d := range data {
		h.Write(d)
	}

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
