// Package transport delivers framed onion requests to a guard node and
// returns the raw response bytes.
//
// The onion layer never opens sockets itself. It hands opaque bytes to a
// Transport:
//
//	type Transport interface {
//	    Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error)
//	}
//
// # Implementations
//
// HTTPTransport posts the frame to https://<ip>:<port>/onion_req/v2, the
// endpoint storage nodes expose for onion requests.
//
// NoiseTransport carries the same frame over a raw TCP connection protected
// by a Noise NK handshake with the guard's X25519 key. NoiseListener is the
// matching server side and is used by test networks and relays.
//
// # Errors
//
// A guard that answers with a non-200 status produces a *StatusError. Its
// helpers classify the well-known relay answers:
//
//	err.IsNodeNotFound()      // 502 "Next node not found: <ed25519>"
//	err.IsDecryptionFailure() // a relay could not decrypt its layer
//	err.IsClockSkew()         // 406, the client clock is off
//	err.IsSwarmChanged()      // 421, the target swarm moved
//
// Deadlines surface as ErrTimeout and other I/O failures as ErrTransport.
// Both are retryable on another path.
package transport
