package snode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// seedRequestLimit is how many nodes a single seed listing asks for.
const seedRequestLimit = 256

// SeedDirectory fetches the active storage node list from seed nodes using
// the get_n_service_nodes JSON-RPC call. Seeds are tried in random order
// until one answers.
type SeedDirectory struct {
	Seeds  []string
	Client *http.Client
}

// NewSeedDirectory creates a directory over the given seed base URLs.
func NewSeedDirectory(seeds []string, client *http.Client) *SeedDirectory {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &SeedDirectory{Seeds: seeds, Client: client}
}

type seedResponse struct {
	Result struct {
		ServiceNodeStates []Node `json:"service_node_states"`
	} `json:"result"`
}

// FetchCandidateNodes implements Directory.
func (d *SeedDirectory) FetchCandidateNodes(ctx context.Context) ([]Node, error) {
	if len(d.Seeds) == 0 {
		return nil, errors.New("no seed nodes configured")
	}

	order := rand.Perm(len(d.Seeds))
	var lastErr error
	for _, i := range order {
		seed := d.Seeds[i]
		nodes, err := d.fetchFrom(ctx, seed)
		if err == nil {
			return nodes, nil
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"function": "FetchCandidateNodes",
			"seed":     seed,
			"error":    err.Error(),
		}).Warn("Seed node listing failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (d *SeedDirectory) fetchFrom(ctx context.Context, seed string) ([]Node, error) {
	body, err := json.Marshal(map[string]any{
		"method": "get_n_service_nodes",
		"params": map[string]any{
			"active_only": true,
			"limit":       seedRequestLimit,
			"fields": map[string]bool{
				"public_ip":      true,
				"storage_port":   true,
				"pubkey_x25519":  true,
				"pubkey_ed25519": true,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(seed, "/") + "/json_rpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed %s returned status %d", seed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	var parsed seedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding seed response: %w", err)
	}

	return filterValid(parsed.Result.ServiceNodeStates), nil
}

// StaticDirectory serves a fixed node list.
type StaticDirectory []Node

// FetchCandidateNodes implements Directory.
func (s StaticDirectory) FetchCandidateNodes(context.Context) ([]Node, error) {
	out := make([]Node, len(s))
	copy(out, s)
	return out, nil
}
