package onion

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/envelope"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHop struct {
	node snode.Node
	keys *crypto.KeyPair
}

func newTestHop(t *testing.T, i int) testHop {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	n := snode.Node{IP: fmt.Sprintf("10.0.1.%d", i+1), Port: 22000, X25519PublicKey: kp.Public}
	_, err = rand.Read(n.Ed25519PublicKey[:])
	require.NoError(t, err)
	return testHop{node: n, keys: kp}
}

func TestBuildPeelOrder(t *testing.T) {
	hops := []testHop{newTestHop(t, 0), newTestHop(t, 1), newTestHop(t, 2)}
	target := newTestHop(t, 3)
	payload := []byte(`{"method":"info","params":{}}`)

	path := []snode.Node{hops[0].node, hops[1].node, hops[2].node}
	built, err := Build(path, snode.StorageNode(target.node), payload)
	require.NoError(t, err)
	assert.True(t, built.Guard.Equal(hops[0].node))

	frame, err := built.RequestBody()
	require.NoError(t, err)

	// Each relay learns only the next hop.
	next := []snode.Node{hops[1].node, hops[2].node, target.node}
	for i, hop := range hops {
		layer, err := Peel(frame, hop.keys.Private)
		require.NoError(t, err, "hop %d", i+1)

		route, err := layer.Route()
		require.NoError(t, err)
		assert.False(t, route.IsFinal())
		assert.Equal(t, next[i].ID(), route.Params.Destination, "hop %d forwards to wrong node", i+1)

		frame, err = route.ForwardFrame()
		require.NoError(t, err)
	}

	layer, err := Peel(frame, target.keys.Private)
	require.NoError(t, err)
	assert.Equal(t, built.DestinationSymmetricKey, layer.SymmetricKey)

	final, err := layer.Route()
	require.NoError(t, err)
	assert.True(t, final.IsFinal())
	require.NotNil(t, final.Params.Headers)
	assert.Equal(t, "", *final.Params.Headers)
	assert.Equal(t, payload, final.Ciphertext)
}

func TestPeelWithWrongKeyFails(t *testing.T) {
	guard := newTestHop(t, 0)
	target := newTestHop(t, 1)
	other := newTestHop(t, 2)

	built, err := Build([]snode.Node{guard.node}, snode.StorageNode(target.node), []byte("x"))
	require.NoError(t, err)
	frame, err := built.RequestBody()
	require.NoError(t, err)

	_, err = Peel(frame, other.keys.Private)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestPeelRejectsMalformedEphemeralKey(t *testing.T) {
	hop := newTestHop(t, 0)

	frame, err := envelope.Encode([]byte("ct"), map[string]string{"ephemeral_key": "zz"})
	require.NoError(t, err)
	_, err = Peel(frame, hop.keys.Private)
	assert.ErrorIs(t, err, ErrMalformedLayer)

	frame, err = envelope.Encode([]byte("ct"), map[string]string{})
	require.NoError(t, err)
	_, err = Peel(frame, hop.keys.Private)
	assert.ErrorIs(t, err, ErrMalformedLayer)
}

func TestEphemeralKeysAreFresh(t *testing.T) {
	target := newTestHop(t, 0)
	payload := []byte("same payload")

	a, err := EncryptInnermost(payload, snode.StorageNode(target.node))
	require.NoError(t, err)
	b, err := EncryptInnermost(payload, snode.StorageNode(target.node))
	require.NoError(t, err)

	assert.NotEqual(t, a.EphemeralPublicKey, b.EphemeralPublicKey)
	assert.NotEqual(t, a.SymmetricKey, b.SymmetricKey)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)

	hop := newTestHop(t, 1)
	h1, err := EncryptHop(hop.node, snode.StorageNode(target.node), a)
	require.NoError(t, err)
	assert.NotEqual(t, a.EphemeralPublicKey, h1.EphemeralPublicKey)
	assert.NotEqual(t, a.SymmetricKey, h1.SymmetricKey)
}

func TestEncryptHopParametersAreHex(t *testing.T) {
	hop := newTestHop(t, 0)
	target := newTestHop(t, 1)

	inner, err := Encrypt([]byte("inner"), target.keys.Public)
	require.NoError(t, err)
	outer, err := EncryptHop(hop.node, snode.StorageNode(target.node), inner)
	require.NoError(t, err)

	shared, err := crypto.DeriveSharedSecret(outer.EphemeralPublicKey, hop.keys.Private)
	require.NoError(t, err)
	plaintext, err := crypto.DecryptGCM(outer.Ciphertext, crypto.DeriveOnionKey(shared))
	require.NoError(t, err)

	ciphertext, meta, err := envelope.Decode(plaintext)
	require.NoError(t, err)
	assert.Equal(t, inner.Ciphertext, ciphertext)

	var params map[string]any
	require.NoError(t, json.Unmarshal(meta, &params))
	assert.Equal(t, map[string]any{
		"destination":   target.node.ID(),
		"ephemeral_key": hex.EncodeToString(inner.EphemeralPublicKey[:]),
	}, params)
}

func TestServerDestination(t *testing.T) {
	guard := newTestHop(t, 0)
	server := newTestHop(t, 1)
	payload := []byte(`{"endpoint":"/room/x"}`)

	dest := snode.Server("open.example.org", "/oxen/v4/lsrpc", server.keys.Public, "https", 443)
	built, err := Build([]snode.Node{guard.node}, dest, payload)
	require.NoError(t, err)

	frame, err := built.RequestBody()
	require.NoError(t, err)
	layer, err := Peel(frame, guard.keys.Private)
	require.NoError(t, err)
	route, err := layer.Route()
	require.NoError(t, err)

	assert.False(t, route.IsFinal())
	assert.Equal(t, "open.example.org", route.Params.Host)
	assert.Equal(t, "/oxen/v4/lsrpc", route.Params.Target)
	assert.Equal(t, "POST", route.Params.Method)
	assert.Equal(t, "https", route.Params.Protocol)
	assert.Equal(t, uint16(443), route.Params.Port)

	// The server receives the payload without an envelope.
	forward, err := route.ForwardFrame()
	require.NoError(t, err)
	final, err := Peel(forward, server.keys.Private)
	require.NoError(t, err)
	assert.Equal(t, payload, final.Plaintext)
}

func TestBuildEmptyPath(t *testing.T) {
	target := newTestHop(t, 0)
	_, err := Build(nil, snode.StorageNode(target.node), []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestResponseRoundTrip(t *testing.T) {
	var key [crypto.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)

	body := []byte(`{"swarm":{}}`)
	raw, err := EncryptResponse(200, body, key)
	require.NoError(t, err)

	resp, err := DecodeResponse(raw, key)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, body, resp.Body)

	wrapped, err := json.Marshal(map[string]string{"result": string(raw)})
	require.NoError(t, err)
	resp, err = DecodeResponse(wrapped, key)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
}

func TestDecodeResponseVariants(t *testing.T) {
	var key [crypto.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)

	seal := func(plaintext string) []byte {
		sealed, err := crypto.EncryptGCM([]byte(plaintext), key)
		require.NoError(t, err)
		return []byte(base64.StdEncoding.EncodeToString(sealed))
	}

	resp, err := DecodeResponse(seal(`{"status_code":421,"body":{"snodes":[]}}`), key)
	require.NoError(t, err)
	assert.Equal(t, 421, resp.Status)
	assert.False(t, resp.OK())
	assert.JSONEq(t, `{"snodes":[]}`, string(resp.Body))

	_, err = DecodeResponse(seal(`{"body":"x"}`), key)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = DecodeResponse([]byte("not base64!"), key)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	var other [crypto.KeySize]byte
	_, err = DecodeResponse(seal(`{"status":200,"body":""}`), other)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}
