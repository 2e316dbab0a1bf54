// Package onion builds and peels the layered encryption used to relay a
// request through a path of storage nodes.
//
// Layers are built from the destination backward. The innermost layer is
// encrypted for the destination, then each hop wraps the previous result
// together with routing parameters for the next hop, ending with the layer
// for the guard node:
//
//	result, _ := onion.Build(path, snode.StorageNode(target), payload)
//	body, _ := result.RequestBody()
//	raw, _ := transport.Send(ctx, body, result.Guard)
//	resp, _ := onion.DecodeResponse(raw, result.DestinationSymmetricKey)
//
// Every layer uses a freshly generated ephemeral X25519 key pair. The
// symmetric key is HMAC-SHA256("LOKI", shared secret) and the layer is sealed
// with AES-256-GCM as iv ‖ ciphertext ‖ tag. Ephemeral public keys always
// travel hex encoded inside the JSON metadata.
//
// Peel and EncryptResponse implement the relay side of the construction and
// are used by in-process test networks.
package onion
