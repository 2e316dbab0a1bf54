package snode

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t testing.TB, i int) Node {
	t.Helper()
	n := Node{IP: fmt.Sprintf("10.0.0.%d", i+1), Port: uint16(20000 + i)}
	_, err := rand.Read(n.X25519PublicKey[:])
	require.NoError(t, err)
	_, err = rand.Read(n.Ed25519PublicKey[:])
	require.NoError(t, err)
	return n
}

func TestNodeJSONSpellings(t *testing.T) {
	x := hex.EncodeToString(make([]byte, 32))
	x = "01" + x[2:]
	ed := "02" + x[2:]

	tests := []struct {
		name string
		in   string
		ip   string
		port uint16
	}{
		{
			name: "swarm form with string port",
			in:   `{"ip":"1.2.3.4","port":"22021","pubkey_x25519":"` + x + `","pubkey_ed25519":"` + ed + `"}`,
			ip:   "1.2.3.4",
			port: 22021,
		},
		{
			name: "seed form with numeric port",
			in:   `{"public_ip":"5.6.7.8","storage_port":443,"pubkey_x25519":"` + x + `","pubkey_ed25519":"` + ed + `"}`,
			ip:   "5.6.7.8",
			port: 443,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Node
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			assert.Equal(t, tt.ip, n.IP)
			assert.Equal(t, tt.port, n.Port)
			assert.Equal(t, ed, n.ID())
			assert.Equal(t, byte(1), n.X25519PublicKey[0])
			assert.NoError(t, n.Validate())
		})
	}
}

func TestNodeJSONRejectsBadKeys(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"ip":"1.2.3.4","port":1,"pubkey_x25519":"abcd","pubkey_ed25519":""}`), &n)
	assert.ErrorIs(t, err, ErrInvalidNode)

	err = json.Unmarshal([]byte(`{"ip":"1.2.3.4","port":70000,"pubkey_x25519":"","pubkey_ed25519":""}`), &n)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestNodeJSONRoundTrip(t *testing.T) {
	n := newTestNode(t, 3)

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var back Node
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, n, back)
}

func TestNodeValidate(t *testing.T) {
	good := newTestNode(t, 0)
	assert.NoError(t, good.Validate())

	unroutable := good
	unroutable.IP = "0.0.0.0"
	assert.ErrorIs(t, unroutable.Validate(), ErrInvalidNode)

	noPort := good
	noPort.Port = 0
	assert.ErrorIs(t, noPort.Validate(), ErrInvalidNode)

	noKey := good
	noKey.X25519PublicKey = [32]byte{}
	assert.ErrorIs(t, noKey.Validate(), ErrInvalidNode)
}

func TestNodeEqualAndAddress(t *testing.T) {
	a := newTestNode(t, 1)
	b := a
	b.IP = "192.168.1.1"
	assert.True(t, a.Equal(b), "identity is the ed25519 key, not the address")
	assert.Equal(t, "10.0.0.2:20001", a.Address())
	assert.Contains(t, a.String(), a.ID()[:8])
}

func TestDestinationHopParameters(t *testing.T) {
	n := newTestNode(t, 0)

	relay := Relay(n)
	assert.Equal(t, KindRelay, relay.Kind())
	assert.Equal(t, map[string]any{"destination": n.ID()}, relay.HopParameters())
	assert.Equal(t, n.X25519PublicKey, relay.X25519())

	storage := StorageNode(n)
	assert.Equal(t, KindStorageNode, storage.Kind())
	assert.Equal(t, n.ID(), storage.HopParameters()["destination"])

	key := n.X25519PublicKey
	server := Server("open.example.org", "/oxen/v4/lsrpc", key, "", 0)
	assert.Equal(t, KindServer, server.Kind())
	assert.Equal(t, key, server.X25519())
	assert.Equal(t, map[string]any{
		"host":     "open.example.org",
		"target":   "/oxen/v4/lsrpc",
		"method":   "POST",
		"protocol": "https",
	}, server.HopParameters())

	withPort := Server("10.1.1.1", "/rpc", key, "http", 8080)
	assert.Equal(t, uint16(8080), withPort.HopParameters()["port"])
	assert.Equal(t, "http", withPort.HopParameters()["protocol"])
	assert.Equal(t, "server", KindServer.String())
}
