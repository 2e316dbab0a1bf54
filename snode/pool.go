package snode

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolExhausted is returned when the directory cannot supply enough
	// usable nodes. It is retryable at the pool-refresh level.
	ErrPoolExhausted = errors.New("snode: node pool exhausted")

	// ErrNoDirectory is returned when a refresh is needed but no directory
	// source was configured.
	ErrNoDirectory = errors.New("snode: no directory configured")
)

// Directory supplies the bootstrap list of candidate nodes.
type Directory interface {
	FetchCandidateNodes(ctx context.Context) ([]Node, error)
}

// PoolConfig holds the tunables of a Pool.
type PoolConfig struct {
	// Refresh from the directory when fewer nodes than this are known.
	MinimumSize int
	// Drop a node after this many reported failures.
	FailureThreshold int
	// Directory fetch attempts per refresh.
	MaxAttempts int
	// Delay between fetch attempts, growing up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultPoolConfig returns the defaults used by the storage network clients.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MinimumSize:      12,
		FailureThreshold: 3,
		MaxAttempts:      4,
		Backoff:          time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// Pool is the shared set of candidate nodes. All methods are safe for
// concurrent use; readers get copies, never the live map.
type Pool struct {
	mu          sync.RWMutex
	nodes       map[string]Node
	failures    map[string]int
	directory   Directory
	config      *PoolConfig
	refreshedAt time.Time

	refreshMu sync.Mutex
}

// NewPool creates an empty pool backed by directory.
func NewPool(directory Directory, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	return &Pool{
		nodes:     make(map[string]Node),
		failures:  make(map[string]int),
		directory: directory,
		config:    config,
	}
}

// Seed adds nodes without contacting the directory, e.g. from a cache.
// Invalid nodes are skipped. It returns the number of nodes added.
func (p *Pool) Seed(nodes []Node) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, n := range nodes {
		if n.Validate() != nil {
			continue
		}
		if _, ok := p.nodes[n.ID()]; !ok {
			added++
		}
		p.nodes[n.ID()] = n
	}
	return added
}

// Refresh replaces the pool with a fresh directory listing, retrying with
// backoff. An empty or invalid listing never replaces a populated pool.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.directory == nil {
		return ErrNoDirectory
	}

	// Concurrent refreshes collapse into one directory round trip.
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	backoff := NewBackoff(p.config.Backoff, p.config.MaxBackoff)
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		nodes, err := p.directory.FetchCandidateNodes(ctx)
		if err == nil {
			valid := filterValid(nodes)
			if len(valid) > 0 {
				p.replace(valid)
				logrus.WithFields(logrus.Fields{
					"function": "Refresh",
					"attempt":  attempt,
					"nodes":    len(valid),
				}).Info("Node pool refreshed")
				return nil
			}
			err = fmt.Errorf("directory returned %d nodes, none usable", len(nodes))
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"function": "Refresh",
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Node pool refresh attempt failed")

		if attempt == p.config.MaxAttempts {
			break
		}
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %v", ErrPoolExhausted, lastErr)
}

// EnsureMinimum refreshes the pool if it holds fewer than MinimumSize nodes.
func (p *Pool) EnsureMinimum(ctx context.Context) error {
	if p.Len() >= p.config.MinimumSize {
		return nil
	}
	return p.Refresh(ctx)
}

func (p *Pool) replace(nodes []Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := make(map[string]Node, len(nodes))
	failures := make(map[string]int)
	for _, n := range nodes {
		fresh[n.ID()] = n
		if c, ok := p.failures[n.ID()]; ok {
			failures[n.ID()] = c
		}
	}
	p.nodes = fresh
	p.failures = failures
	p.refreshedAt = time.Now()
}

// Snapshot returns a copy of all nodes, ordered by ID.
func (p *Pool) Snapshot() []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Random returns up to count distinct nodes chosen uniformly at random,
// skipping any node whose ID is in exclude.
func (p *Pool) Random(count int, exclude map[string]bool) []Node {
	candidates := p.Snapshot()
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	out := make([]Node, 0, count)
	for _, n := range candidates {
		if len(out) == count {
			break
		}
		if exclude[n.ID()] {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Len returns the number of nodes in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes)
}

// Contains reports whether the node with the given ID is in the pool.
func (p *Pool) Contains(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.nodes[id]
	return ok
}

// Get returns the node with the given ID.
func (p *Pool) Get(id string) (Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[id]
	return n, ok
}

// Remove drops a node from the pool. It reports whether it was present.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.nodes[id]
	delete(p.nodes, id)
	delete(p.failures, id)

	if ok {
		logrus.WithFields(logrus.Fields{
			"function":  "Remove",
			"node":      id[:min(16, len(id))],
			"remaining": len(p.nodes),
		}).Info("Node removed from pool")
	}
	return ok
}

// RecordFailure counts a failure against a node and removes it once the
// threshold is reached. It reports whether the node was removed.
func (p *Pool) RecordFailure(id string) bool {
	p.mu.Lock()
	if _, ok := p.nodes[id]; !ok {
		p.mu.Unlock()
		return false
	}
	p.failures[id]++
	count := p.failures[id]
	p.mu.Unlock()

	if count >= p.config.FailureThreshold {
		return p.Remove(id)
	}
	return false
}

// RecordSuccess clears the failure count of a node.
func (p *Pool) RecordSuccess(id string) {
	p.mu.Lock()
	delete(p.failures, id)
	p.mu.Unlock()
}

// Failures returns the current failure count of a node.
func (p *Pool) Failures(id string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures[id]
}

// RefreshedAt returns when the pool was last replaced from the directory.
func (p *Pool) RefreshedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refreshedAt
}

// MinimumSize returns the configured minimum pool size.
func (p *Pool) MinimumSize() int {
	return p.config.MinimumSize
}

func filterValid(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.Validate() != nil || seen[n.ID()] {
			continue
		}
		seen[n.ID()] = true
		out = append(out, n)
	}
	return out
}
