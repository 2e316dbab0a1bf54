package snode

import (
	"encoding/hex"
	"fmt"
)

// DestinationKind identifies the variant held by a Destination.
type DestinationKind int

const (
	// KindRelay is an intermediate onion hop addressed by its Ed25519 key.
	KindRelay DestinationKind = iota
	// KindStorageNode is a storage node terminating the onion.
	KindStorageNode
	// KindServer is an HTTP-like server reached through the last hop.
	KindServer
)

func (k DestinationKind) String() string {
	switch k {
	case KindRelay:
		return "relay"
	case KindStorageNode:
		return "storage_node"
	case KindServer:
		return "server"
	default:
		return fmt.Sprintf("DestinationKind(%d)", int(k))
	}
}

// Destination is where an onion layer leads. The set of implementations is
// closed: RelayDestination, StorageDestination and ServerDestination.
type Destination interface {
	Kind() DestinationKind
	// X25519 is the key the layer addressed to this destination is
	// encrypted for.
	X25519() [32]byte
	// HopParameters is the JSON object the previous hop reads to route the
	// request here. The ephemeral key is added by the onion builder.
	HopParameters() map[string]any

	isDestination()
}

// RelayDestination is an intermediate hop.
type RelayDestination struct{ Node Node }

// StorageDestination is a storage node that handles the request itself.
type StorageDestination struct{ Node Node }

// ServerDestination is a server behind the last hop. Scheme defaults to
// "https" and Port is omitted from the hop parameters when zero.
type ServerDestination struct {
	Host            string
	Target          string
	X25519PublicKey [32]byte
	Scheme          string
	Port            uint16
}

// Relay wraps node as an intermediate hop.
func Relay(node Node) Destination { return RelayDestination{Node: node} }

// StorageNode wraps node as the final storage node of an onion.
func StorageNode(node Node) Destination { return StorageDestination{Node: node} }

// Server describes a final HTTP-like destination.
func Server(host, target string, x25519PublicKey [32]byte, scheme string, port uint16) Destination {
	return ServerDestination{
		Host:            host,
		Target:          target,
		X25519PublicKey: x25519PublicKey,
		Scheme:          scheme,
		Port:            port,
	}
}

func (d RelayDestination) Kind() DestinationKind { return KindRelay }
func (d RelayDestination) X25519() [32]byte { return d.Node.X25519PublicKey }
func (d RelayDestination) HopParameters() map[string]any {
	return map[string]any{"destination": d.Node.ID()}
}
func (RelayDestination) isDestination() {}

func (d StorageDestination) Kind() DestinationKind { return KindStorageNode }
func (d StorageDestination) X25519() [32]byte { return d.Node.X25519PublicKey }
func (d StorageDestination) HopParameters() map[string]any {
	return map[string]any{"destination": d.Node.ID()}
}
func (StorageDestination) isDestination() {}

func (d ServerDestination) Kind() DestinationKind { return KindServer }
func (d ServerDestination) X25519() [32]byte { return d.X25519PublicKey }
func (d ServerDestination) HopParameters() map[string]any {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "https"
	}
	params := map[string]any{
		"host":     d.Host,
		"target":   d.Target,
		"method":   "POST",
		"protocol": scheme,
	}
	if d.Port != 0 {
		params["port"] = d.Port
	}
	return params
}
func (ServerDestination) isDestination() {}

// String implements fmt.Stringer for log fields.
func (d ServerDestination) String() string {
	return fmt.Sprintf("%s://%s%s (%s…)", d.HopParameters()["protocol"], d.Host, d.Target,
		hex.EncodeToString(d.X25519PublicKey[:4]))
}
