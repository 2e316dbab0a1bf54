// Package testnet provides an in-process storage node network for tests.
//
// A Network implements both transport.Transport and snode.Directory, so a
// client can be pointed at it directly:
//
//	net, err := testnet.New(testnet.DefaultOptions())
//	...
//	opts := onionrelay.NewOptions()
//	opts.Directory = net
//	opts.Transport = net
//
// Every node peels its onion layer for real, forwards the inner frame to the
// next node named in the layer, and answers the JSON-RPC methods info,
// get_snodes_for_pubkey and store when it is the destination. Faults can be
// injected per node to exercise timeouts, unknown next hops, key mismatches
// and forged store confirmations. With Options.Listen set, every node also
// serves its onion endpoint over a Noise listener on localhost.
package testnet
