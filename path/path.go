package path

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/onionrelay/snode"
)

var (
	// ErrInsufficientNodes is returned when the pool cannot supply enough
	// distinct nodes for a full path. It is retryable after a pool refresh.
	ErrInsufficientNodes = errors.New("path: not enough distinct nodes")

	// ErrNoPath is returned when no usable path could be obtained.
	ErrNoPath = errors.New("path: no usable path")

	// ErrClosed is returned after the manager was closed.
	ErrClosed = errors.New("path: manager closed")
)

// State is the lifecycle state of a path.
type State int

const (
	Empty State = iota
	Building
	Ready
	Degraded
	Rebuilding
	Dead
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Building:
		return "building"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Rebuilding:
		return "rebuilding"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FailureKind classifies a failed request for ReportFailure.
type FailureKind int

const (
	// FailureRelay is a timeout, transport error or malformed response on
	// the path.
	FailureRelay FailureKind = iota
	// FailureAuthentication is a relay reporting that it could not decrypt
	// its layer. The request is not retried on the same path.
	FailureAuthentication
	// FailureNodeMissing is a relay reporting that the next hop is unknown.
	// The culprit is dropped from the pool.
	FailureNodeMissing
	// FailureGlobal means the node pool itself looks stale.
	FailureGlobal
)

func (k FailureKind) String() string {
	switch k {
	case FailureRelay:
		return "relay"
	case FailureAuthentication:
		return "authentication"
	case FailureNodeMissing:
		return "node_missing"
	case FailureGlobal:
		return "global"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Path is an immutable, ordered list of distinct nodes. Nodes[0] is the
// guard. Callers must not modify Nodes.
type Path struct {
	ID        uuid.UUID
	Nodes     []snode.Node
	CreatedAt time.Time
}

// Guard returns the first hop.
func (p *Path) Guard() snode.Node {
	return p.Nodes[0]
}

// Contains reports whether the node with the given ID is on the path.
func (p *Path) Contains(id string) bool {
	for _, n := range p.Nodes {
		if n.ID() == id {
			return true
		}
	}
	return false
}

// String returns a short loggable description.
func (p *Path) String() string {
	hops := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		hops[i] = n.ID()[:8]
	}
	return fmt.Sprintf("%s [%s]", p.ID.String()[:8], strings.Join(hops, " -> "))
}
