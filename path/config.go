package path

import (
	"context"
	"time"

	"github.com/opd-ai/onionrelay/snode"
)

// Path lengths accepted by a Manager, guard included. Other values are
// clamped into this range.
const (
	MinPathLength = 2
	MaxPathLength = 3
)

// Config holds the tunables of a Manager.
type Config struct {
	// Number of paths kept ready.
	PathCount int
	// Nodes per path, guard included.
	PathLength int
	// Number of pinned guard nodes shared by all paths.
	GuardCount int
	// Paths older than this are retired and rebuilt. Zero disables expiry.
	MaxAge time.Duration
	// Background rebuild retries, with exponential backoff between them.
	MaxRebuildAttempts int
	RebuildBackoff     time.Duration
	MaxRebuildBackoff  time.Duration

	// Prober, if set, checks guard candidates before they are pinned.
	Prober Prober
	// Store, if set, persists the node pool and the pinned guards.
	Store NodeStore
	// TimeProvider defaults to the wall clock.
	TimeProvider TimeProvider
}

// DefaultConfig returns the settings used by the storage network clients:
// two paths of three nodes sharing two guards.
func DefaultConfig() *Config {
	return &Config{
		PathCount:          2,
		PathLength:         3,
		GuardCount:         2,
		MaxRebuildAttempts: 5,
		RebuildBackoff:     time.Second,
		MaxRebuildBackoff:  30 * time.Second,
	}
}

func (c *Config) fixup() {
	def := DefaultConfig()
	if c.PathCount <= 0 {
		c.PathCount = def.PathCount
	}
	switch {
	case c.PathLength <= 0:
		c.PathLength = def.PathLength
	case c.PathLength < MinPathLength:
		c.PathLength = MinPathLength
	case c.PathLength > MaxPathLength:
		c.PathLength = MaxPathLength
	}
	if c.GuardCount <= 0 {
		c.GuardCount = def.GuardCount
	}
	if c.MaxRebuildAttempts <= 0 {
		c.MaxRebuildAttempts = def.MaxRebuildAttempts
	}
	if c.RebuildBackoff <= 0 {
		c.RebuildBackoff = def.RebuildBackoff
	}
	if c.MaxRebuildBackoff <= 0 {
		c.MaxRebuildBackoff = def.MaxRebuildBackoff
	}
	if c.TimeProvider == nil {
		c.TimeProvider = DefaultTimeProvider{}
	}
}

// Prober checks that a node is reachable, e.g. with a cheap RPC sent
// directly to it.
type Prober interface {
	Probe(ctx context.Context, node snode.Node) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, node snode.Node) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, node snode.Node) error {
	return f(ctx, node)
}

// NodeStore persists the node pool and the pinned guards across restarts.
type NodeStore interface {
	LoadNodes() ([]snode.Node, error)
	SaveNodes(nodes []snode.Node) error
	LoadGuards() ([]snode.Node, error)
	SaveGuards(guards []snode.Node) error
}

// TimeProvider abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }
