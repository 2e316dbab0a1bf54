// Package onionrelay is an onion-routed client for a decentralized storage
// node network of the kind used by Session-style messengers.
//
// A request is layered for a path of storage nodes so that the guard sees
// only the client, the destination sees only the last relay, and no single
// node learns both. The client keeps a small set of paths over a pool of
// nodes fetched from seed nodes, evicts paths that fail and rebuilds them in
// the background.
//
// # Getting Started
//
//	client, err := onionrelay.New(onionrelay.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	hashes, err := client.SendMessage(ctx, onionrelay.Message{
//	    Recipient: "05...",
//	    Body:      []byte("hello"),
//	})
//
// SendMessage pads, signs and seals the message for the recipient, wraps it
// in the outer envelope and stores it on every node of the recipient's swarm.
// It succeeds when at least half the swarm returns a consistent signed hash.
//
// # Errors
//
// Every failed request matches one of [ErrTimeout], [ErrQuorumNotMet],
// [ErrAuthenticationFailure], [ErrNoPathAvailable] or [ErrDestination] with
// errors.Is. Invalid input, such as an empty or oversized message or a
// malformed Session ID, is reported with the error of the package that
// rejected it.
//
// # Packages
//
//   - crypto: key agreement, AEAD, signatures, sealed boxes
//   - envelope: the length-prefixed ciphertext plus JSON frame
//   - snode: storage nodes, destinations and the node pool
//   - onion: layer construction, peeling and response decoding
//   - path: path selection, guard pinning and rebuild
//   - quorum: multi-node response validation
//   - protocol: message padding, sealing and the outer envelope
//   - transport: HTTPS and Noise links to guard nodes
//   - testnet: an in-process storage network for tests
package onionrelay
