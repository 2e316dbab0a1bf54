package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/opd-ai/onionrelay/snode"
)

var (
	// ErrTimeout is returned when a hop does not answer before the deadline.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrTransport is returned for connection level failures.
	ErrTransport = errors.New("transport: request failed")
)

// Transport sends one request to a node and returns its response body.
type Transport interface {
	Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, payload []byte, to snode.Node) ([]byte, error)

// Send implements Transport.
func (f Func) Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error) {
	return f(ctx, payload, to)
}

const (
	nodeNotFoundPrefix = "Next node not found: "
	decryptFailureText = "Failed to decrypt"
)

// StatusError is a non-200 answer from a guard or relay.
type StatusError struct {
	Status int
	Body   []byte
	Node   snode.Node
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 128 {
		body = body[:128] + "..."
	}
	return fmt.Sprintf("transport: %s answered %d %s: %s",
		e.Node.String(), e.Status, http.StatusText(e.Status), body)
}

// IsNodeNotFound reports whether a relay could not find the next hop and
// returns that hop's Ed25519 key.
func (e *StatusError) IsNodeNotFound() (string, bool) {
	body := string(e.Body)
	if e.Status != http.StatusBadGateway || !strings.HasPrefix(body, nodeNotFoundPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(body, nodeNotFoundPrefix)), true
}

// IsDecryptionFailure reports whether a relay failed to decrypt its layer.
func (e *StatusError) IsDecryptionFailure() bool {
	return strings.Contains(string(e.Body), decryptFailureText)
}

// IsClockSkew reports whether the node rejected the request timestamp.
func (e *StatusError) IsClockSkew() bool {
	return e.Status == http.StatusNotAcceptable
}

// IsSwarmChanged reports whether the target is no longer in the swarm of
// the requested public key.
func (e *StatusError) IsSwarmChanged() bool {
	return e.Status == http.StatusMisdirectedRequest
}

// classify maps I/O errors onto ErrTimeout or ErrTransport.
func classify(ctx context.Context, to snode.Node, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, to.String())
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %v", ErrTimeout, to.String(), err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransport, to.String(), err)
	}
}
