// Package snode models the storage nodes that relay onion requests and
// store messages, and maintains the shared pool of candidate nodes.
//
// # Nodes
//
// A [Node] is an immutable snapshot: address plus X25519 (encryption) and
// Ed25519 (identity) public keys. Its [Node.ID] is the hex Ed25519 key.
//
// # Pool
//
// [Pool] holds the candidate set shared by every path and request. It is
// filled from a [Directory] (normally [SeedDirectory], which queries seed
// nodes with get_n_service_nodes) or seeded from a cache:
//
//	pool := snode.NewPool(snode.NewSeedDirectory(seeds, nil), nil)
//	if err := pool.EnsureMinimum(ctx); err != nil {
//	    // snode.ErrPoolExhausted: retry at the pool level
//	}
//
// Failures reported against a node accumulate; once FailureThreshold is
// reached the node is dropped. Refresh retries with exponential backoff
// and jitter ([Backoff]).
package snode
