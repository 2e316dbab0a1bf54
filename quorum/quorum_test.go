package quorum

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/opd-ai/onionrelay/snode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responses(n int) map[string]string {
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("node%d", i)] = "hash"
	}
	return out
}

func TestValidatedThresholds(t *testing.T) {
	tests := []struct {
		name     string
		valid    int
		total    int
		required int
		ok       bool
	}{
		{"half of four with two", 2, 4, -2, true},
		{"half of four with one", 1, 4, -2, false},
		{"half of three rounds up", 1, 3, -2, false},
		{"half of three with two", 2, 3, -2, true},
		{"quarter of four with one", 1, 4, -4, true},
		{"quarter of five with one", 1, 5, -4, false},
		{"exact count met", 3, 5, 3, true},
		{"exact count missed", 2, 5, 3, false},
		{"zero required", 0, 5, 0, true},
		{"none valid fractional", 0, 5, -2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validated(responses(tt.valid), tt.total, tt.required)
			if tt.ok {
				require.NoError(t, err)
				assert.Len(t, got, tt.valid)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrQuorumNotMet)
			assert.NotErrorIs(t, err, ErrNoResponses)

			var insufficient *InsufficientError
			require.True(t, errors.As(err, &insufficient))
			assert.Equal(t, tt.valid, insufficient.Valid)
			assert.Equal(t, tt.total, insufficient.Total)
			assert.Equal(t, tt.required, insufficient.Required)
		})
	}
}

func TestValidatedNoResponses(t *testing.T) {
	_, err := Validated(map[string]string{}, 0, -2)
	assert.ErrorIs(t, err, ErrNoResponses)
	assert.ErrorIs(t, err, ErrQuorumNotMet)
}

func TestValidatedBoolsUsesOriginalTotal(t *testing.T) {
	answers := map[string]bool{"a": true, "b": false, "c": false, "d": true}

	got, err := ValidatedBools(answers, 4, -2)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "d": true}, got)

	answers["d"] = false
	_, err = ValidatedBools(answers, 4, -2)
	var insufficient *InsufficientError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Valid)
	assert.Equal(t, 4, insufficient.Total)

	// Nodes that never answered still count against the quorum.
	_, err = ValidatedBools(map[string]bool{"a": true, "b": true}, 5, -2)
	assert.ErrorIs(t, err, ErrQuorumNotMet)
}

type storageNode struct {
	node snode.Node
	priv ed25519.PrivateKey
}

func newStorageNode(t *testing.T, i int) storageNode {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	n := snode.Node{IP: fmt.Sprintf("10.0.2.%d", i+1), Port: 22021}
	copy(n.Ed25519PublicKey[:], pub)
	n.X25519PublicKey[0] = byte(i + 1)
	return storageNode{node: n, priv: priv}
}

func (s storageNode) sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

func TestParseStoreResponse(t *testing.T) {
	nodes := []storageNode{newStorageNode(t, 0), newStorageNode(t, 1), newStorageNode(t, 2)}
	outsider := newStorageNode(t, 3)
	swarm := []snode.Node{nodes[0].node, nodes[1].node, nodes[2].node}

	good, err := SignStoreEntry("abc", nodes[0].sign)
	require.NoError(t, err)
	forged, err := SignStoreEntry("abc", nodes[0].sign)
	require.NoError(t, err)
	foreign, err := SignStoreEntry("abc", outsider.sign)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"swarm": map[string]any{
			nodes[0].node.ID(): good,
			nodes[1].node.ID(): forged,
			nodes[2].node.ID(): map[string]any{"failed": true, "reason": "full"},
			outsider.node.ID(): foreign,
		},
	})
	require.NoError(t, err)

	hashes, err := ParseStoreResponse(body, swarm)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{nodes[0].node.ID(): "abc"}, hashes)

	_, err = ParseStoreResponse([]byte("[]"), swarm)
	assert.ErrorIs(t, err, ErrMalformedStoreResponse)
}

func TestConsistentKeepsLargestGroup(t *testing.T) {
	got := Consistent(map[string]string{
		"a": "h1", "b": "h1", "c": "h2", "d": "h1",
	})
	assert.Equal(t, map[string]string{"a": "h1", "b": "h1", "d": "h1"}, got)

	agreeing := map[string][]byte{"a": []byte("x"), "b": []byte("x")}
	assert.Equal(t, agreeing, Consistent(agreeing))

	assert.Empty(t, Consistent(map[string]string{"a": "h1", "b": "h2"}))
	assert.Equal(t, map[string]string{"a": "h1", "b": "h1"},
		Consistent(map[string]string{"a": "h1", "b": "h1", "c": "h2", "d": "h3"}))
}

func TestEvenSplitFailsStoreQuorum(t *testing.T) {
	responses := map[string]string{"a": "h1", "b": "h1", "c": "h2", "d": "h2"}
	for i := 0; i < 10; i++ {
		agreeing := Consistent(responses)
		assert.Empty(t, agreeing)

		_, err := Validated(agreeing, len(responses), -2)
		assert.ErrorIs(t, err, ErrQuorumNotMet)
	}
}
