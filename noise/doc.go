// Package noise implements the Noise NK handshake used to protect the link
// between a client and its guard node when requests are carried over raw TCP
// instead of HTTPS.
//
// NK fits the onion client: the initiator knows the guard's static X25519
// key from the node directory, while the initiator itself stays anonymous
// and uses only an ephemeral key.
//
//	NK:
//	  <- s
//	  ...
//	  -> e, es
//	  <- e, ee
//
// The cipher suite is Curve25519, ChaCha20-Poly1305 and SHA-256 from
// github.com/flynn/noise. After the two handshake messages both sides hold a
// pair of cipher states, one per direction.
package noise
