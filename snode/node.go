package snode

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	// ErrInvalidNode is returned when a node record is incomplete or unroutable.
	ErrInvalidNode = errors.New("snode: invalid node")
)

// Node is an immutable snapshot of a storage node that can act as a relay
// hop or as a final destination.
type Node struct {
	IP               string
	Port             uint16
	X25519PublicKey  [32]byte
	Ed25519PublicKey [32]byte
}

// ID returns the hex Ed25519 public key, which uniquely identifies a node.
func (n Node) ID() string {
	return hex.EncodeToString(n.Ed25519PublicKey[:])
}

// Address returns the host:port the node listens on.
func (n Node) Address() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(int(n.Port)))
}

// String returns a short loggable form: the address and a key prefix.
func (n Node) String() string {
	return fmt.Sprintf("%s (%s…)", n.Address(), n.ID()[:8])
}

// Equal reports whether both values describe the same node.
func (n Node) Equal(other Node) bool {
	return n.Ed25519PublicKey == other.Ed25519PublicKey
}

// Validate checks that the node can be used as a hop.
func (n Node) Validate() error {
	switch {
	case n.IP == "" || n.IP == "0.0.0.0":
		return fmt.Errorf("%w: unroutable ip %q", ErrInvalidNode, n.IP)
	case n.Port == 0:
		return fmt.Errorf("%w: missing port", ErrInvalidNode)
	case n.X25519PublicKey == [32]byte{}:
		return fmt.Errorf("%w: missing x25519 key", ErrInvalidNode)
	case n.Ed25519PublicKey == [32]byte{}:
		return fmt.Errorf("%w: missing ed25519 key", ErrInvalidNode)
	}
	return nil
}

// nodeJSON is the wire form. Seed nodes spell the address fields
// public_ip/storage_port while swarm responses use ip/port, and ports
// arrive either as numbers or as strings.
type nodeJSON struct {
	IP          string       `json:"ip,omitempty"`
	PublicIP    string       `json:"public_ip,omitempty"`
	Port        flexibleUint `json:"port,omitempty"`
	StoragePort flexibleUint `json:"storage_port,omitempty"`
	X25519Hex   string       `json:"pubkey_x25519"`
	Ed25519Hex  string       `json:"pubkey_ed25519"`
}

// MarshalJSON encodes the node in the ip/port form.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		IP:         n.IP,
		Port:       flexibleUint(n.Port),
		X25519Hex:  hex.EncodeToString(n.X25519PublicKey[:]),
		Ed25519Hex: hex.EncodeToString(n.Ed25519PublicKey[:]),
	})
}

// UnmarshalJSON accepts both address spellings used by the network.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ip := raw.IP
	if ip == "" {
		ip = raw.PublicIP
	}
	port := raw.Port
	if port == 0 {
		port = raw.StoragePort
	}
	if port > 0xffff {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidNode, port)
	}

	x, err := decodeKey(raw.X25519Hex)
	if err != nil {
		return fmt.Errorf("%w: pubkey_x25519: %v", ErrInvalidNode, err)
	}
	ed, err := decodeKey(raw.Ed25519Hex)
	if err != nil {
		return fmt.Errorf("%w: pubkey_ed25519: %v", ErrInvalidNode, err)
	}

	*n = Node{IP: ip, Port: uint16(port), X25519PublicKey: x, Ed25519PublicKey: ed}
	return nil
}

// ParseKey decodes a 64-character hex public key.
func ParseKey(s string) ([32]byte, error) {
	return decodeKey(s)
}

func decodeKey(s string) ([32]byte, error) {
	var key [32]byte
	if len(s) != 64 {
		return key, fmt.Errorf("key has %d hex characters, want 64", len(s))
	}
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return key, err
	}
	return key, nil
}

// flexibleUint decodes a JSON number or a numeric string.
type flexibleUint uint64

func (f *flexibleUint) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return err
	}
	*f = flexibleUint(v)
	return nil
}
