package quorum

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
)

// ErrMalformedStoreResponse is returned when a store response is not the
// expected JSON object. It is not retryable.
var ErrMalformedStoreResponse = errors.New("quorum: malformed store response")

type storeEntry struct {
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
	Failed    bool   `json:"failed"`
	Reason    string `json:"reason"`
}

type storeResponse struct {
	Swarm map[string]storeEntry `json:"swarm"`
}

// ParseStoreResponse extracts the message hash reported by each node of
// swarm from a store response. An entry counts only if it names a node of
// swarm, did not fail, and carries that node's Ed25519 signature over the
// hash. The result maps node ID to hash.
func ParseStoreResponse(body []byte, swarm []snode.Node) (map[string]string, error) {
	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStoreResponse, err)
	}

	members := make(map[string]snode.Node, len(swarm))
	for _, n := range swarm {
		members[n.ID()] = n
	}

	hashes := make(map[string]string, len(parsed.Swarm))
	for id, entry := range parsed.Swarm {
		node, ok := members[id]
		if !ok {
			continue
		}
		if err := verifyStoreEntry(node, entry); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ParseStoreResponse",
				"node":     node.String(),
				"error":    err.Error(),
			}).Warn("Discarding store response entry")
			continue
		}
		hashes[id] = entry.Hash
	}
	return hashes, nil
}

func verifyStoreEntry(node snode.Node, entry storeEntry) error {
	if entry.Failed {
		return fmt.Errorf("node reported failure: %s", entry.Reason)
	}
	if entry.Hash == "" {
		return errors.New("missing hash")
	}
	signature, err := base64.StdEncoding.DecodeString(entry.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	return crypto.CheckSignature([]byte(entry.Hash), signature, node.Ed25519PublicKey[:])
}

// SignStoreEntry builds the swarm entry a storage node returns for a stored
// message. It is the node side of ParseStoreResponse.
func SignStoreEntry(hash string, signer func([]byte) ([]byte, error)) (map[string]any, error) {
	signature, err := signer([]byte(hash))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"hash":      hash,
		"signature": base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// Bytes is the set of response types Consistent can compare.
type Bytes interface {
	~string | ~[]byte
}

// Consistent keeps the largest group of identical responses, compared by
// BLAKE2b digest. When two groups tie for largest no group agrees and the
// result is empty.
func Consistent[T Bytes](responses map[string]T) map[string]T {
	groups := make(map[string][]string)
	for id, v := range responses {
		digest := crypto.Hash([]byte(v))
		key := hex.EncodeToString(digest[:])
		groups[key] = append(groups[key], id)
	}
	if len(groups) <= 1 {
		return responses
	}

	best, tied := "", false
	for k, ids := range groups {
		switch {
		case best == "" || len(ids) > len(groups[best]):
			best, tied = k, false
		case len(ids) == len(groups[best]):
			tied = true
		}
	}
	if tied {
		logrus.WithFields(logrus.Fields{
			"function":  "Consistent",
			"groups":    len(groups),
			"responses": len(responses),
		}).Warn("Nodes split evenly between conflicting responses")
		return map[string]T{}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Consistent",
		"groups":    len(groups),
		"agreeing":  len(groups[best]),
		"responses": len(responses),
	}).Warn("Nodes returned conflicting responses")

	out := make(map[string]T, len(groups[best]))
	for _, id := range groups[best] {
		out[id] = responses[id]
	}
	return out
}
