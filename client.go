package onionrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/instrument"
	"github.com/opd-ai/onionrelay/limits"
	"github.com/opd-ai/onionrelay/nodecache"
	"github.com/opd-ai/onionrelay/onion"
	"github.com/opd-ai/onionrelay/path"
	"github.com/opd-ai/onionrelay/protocol"
	"github.com/opd-ai/onionrelay/quorum"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/opd-ai/onionrelay/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// storeQuorum requires at least half of the swarm to confirm a store.
const storeQuorum = -2

// Client sends onion-routed requests to the storage network. All network
// state lives in the Client; separate clients share nothing.
type Client struct {
	options   Options
	identity  *crypto.Identity
	pool      *snode.Pool
	paths     *path.Manager
	transport transport.Transport
	cache     *nodecache.Cache
}

// Message is an outgoing one-to-one message.
type Message struct {
	// Recipient is the Session ID ("05" + hex X25519 key).
	Recipient string
	Body      []byte
	// TTL defaults to DefaultMessageTTL.
	TTL time.Duration
}

// New creates a client. Nothing is sent until the first request.
func New(options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	opts := *options
	def := NewOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxRequestAttempts <= 0 {
		opts.MaxRequestAttempts = def.MaxRequestAttempts
	}
	if opts.Path == nil {
		opts.Path = def.Path
	}
	if opts.Pool == nil {
		opts.Pool = def.Pool
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = def.TimeProvider
	}

	identity := opts.Identity
	if identity == nil {
		var err error
		if identity, err = crypto.GenerateIdentity(); err != nil {
			return nil, err
		}
	}

	c := &Client{
		options:   opts,
		identity:  identity,
		pool:      snode.NewPool(opts.directory(), opts.Pool),
		transport: opts.transport(),
	}

	pathConfig := *opts.Path
	if pathConfig.TimeProvider == nil {
		pathConfig.TimeProvider = opts.TimeProvider
	}
	if opts.CacheFile != "" {
		cache, err := nodecache.Open(opts.CacheFile)
		if err != nil {
			return nil, err
		}
		c.cache = cache
		pathConfig.Store = cache
	}
	if opts.ProbeGuards && pathConfig.Prober == nil {
		pathConfig.Prober = path.ProberFunc(c.probeGuard)
	}
	c.paths = path.NewManager(c.pool, &pathConfig)

	instrument.Init()

	fields := crypto.SecureFieldHash(c.identity.X25519.Public[:], "session_key")
	fields["function"] = "New"
	fields["attempts"] = opts.MaxRequestAttempts
	fields["timeout"] = opts.RequestTimeout.String()
	logrus.WithFields(fields).Info("Onion client created")

	return c, nil
}

// Identity returns the identity messages are signed with.
func (c *Client) Identity() *crypto.Identity {
	return c.identity
}

// SessionID returns the client's own Session ID.
func (c *Client) SessionID() string {
	return protocol.SessionID(c.identity.X25519.Public)
}

// Paths returns the path manager.
func (c *Client) Paths() *path.Manager {
	return c.paths
}

// Pool returns the node pool.
func (c *Client) Pool() *snode.Pool {
	return c.pool
}

// Close stops background path maintenance and flushes the node cache.
func (c *Client) Close() error {
	err := c.paths.Close()
	if c.cache != nil {
		if cerr := c.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SendOnionRequest sends payload to destination through a path. Failures
// of the path itself evict it and the request is retried on another path,
// up to MaxRequestAttempts. A response with a non-2xx status is returned
// together with an ErrDestination error.
func (c *Client) SendOnionRequest(ctx context.Context, payload []byte, destination snode.Destination) (*onion.Response, error) {
	if err := limits.ValidateOnionPayload(payload); err != nil {
		instrument.OnionRequest("invalid_request")
		return nil, err
	}

	var base []string
	if sd, ok := destination.(snode.StorageDestination); ok {
		base = []string{sd.Node.ID()}
	}
	exclude := base

	var lastErr error
	for attempt := 1; attempt <= c.options.MaxRequestAttempts; attempt++ {
		p, err := c.paths.GetPath(ctx, exclude...)
		if err != nil && len(exclude) > len(base) && errors.Is(err, path.ErrInsufficientNodes) {
			p, err = c.paths.GetPath(ctx, base...)
		}
		if err != nil {
			if ctx.Err() != nil {
				lastErr = requestError(ErrTimeout, err)
			} else {
				lastErr = requestError(ErrNoPathAvailable, err)
			}
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.options.RequestTimeout)
		resp, err := c.exchange(attemptCtx, p.Nodes, destination, payload)
		cancel()

		if err == nil {
			for _, n := range p.Nodes {
				c.pool.RecordSuccess(n.ID())
			}
			if !resp.OK() {
				instrument.OnionRequest(outcome(ErrDestination))
				return resp, requestError(ErrDestination, &DestinationError{Status: resp.Status, Body: resp.Body})
			}
			instrument.OnionRequest("ok")
			return resp, nil
		}

		var buildErr *buildError
		if errors.As(err, &buildErr) {
			instrument.OnionRequest("invalid_request")
			return nil, buildErr.err
		}

		v := classifyFailure(ctx, p, err)
		if v.evict {
			failure := v.failure
			if failure == path.FailureRelay && attempt == c.options.MaxRequestAttempts {
				failure = path.FailureGlobal
			}
			c.paths.ReportFailure(p, failure, v.culprit)
		} else if v.culprit != "" {
			c.pool.Remove(v.culprit)
		}

		logrus.WithFields(logrus.Fields{
			"function": "SendOnionRequest",
			"attempt":  attempt,
			"path":     p.String(),
			"kind":     outcome(v.kind),
			"error":    err.Error(),
		}).Warn("Onion request failed")

		lastErr = requestError(v.kind, err)
		if !v.retry || ctx.Err() != nil {
			break
		}
		exclude = appendRelays(exclude, p)
	}

	instrument.OnionRequest(outcome(lastErr))
	return nil, lastErr
}

// buildError marks a failure to construct the onion itself. It is returned
// to the caller as is and never retried.
type buildError struct {
	err error
}

func (e *buildError) Error() string { return e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// exchange builds an onion over nodes, sends it to the guard and decrypts
// the destination's answer.
func (c *Client) exchange(ctx context.Context, nodes []snode.Node, destination snode.Destination, payload []byte) (*onion.Response, error) {
	o, err := onion.Build(nodes, destination, payload)
	if err != nil {
		return nil, &buildError{err: err}
	}
	body, err := o.RequestBody()
	if err != nil {
		return nil, &buildError{err: err}
	}

	raw, err := c.transport.Send(ctx, body, o.Guard)
	if err != nil {
		return nil, err
	}
	return onion.DecodeResponse(raw, o.DestinationSymmetricKey)
}

// verdict is how a failed attempt affects the path and the request.
type verdict struct {
	kind    error
	failure path.FailureKind
	culprit string
	evict   bool
	retry   bool
}

func classifyFailure(ctx context.Context, p *path.Path, err error) verdict {
	var status *transport.StatusError
	switch {
	case ctx.Err() != nil:
		return verdict{kind: ErrTimeout}
	case errors.Is(err, crypto.ErrAuthenticationFailed):
		return verdict{kind: ErrAuthenticationFailure, failure: path.FailureAuthentication, evict: true}
	case errors.As(err, &status):
		if missing, ok := status.IsNodeNotFound(); ok {
			if p.Contains(missing) {
				return verdict{kind: ErrNoPathAvailable, failure: path.FailureNodeMissing, culprit: missing, evict: true, retry: true}
			}
			// The destination itself is gone.
			return verdict{kind: ErrDestination, culprit: missing}
		}
		switch {
		case status.IsDecryptionFailure():
			return verdict{kind: ErrAuthenticationFailure, failure: path.FailureAuthentication, evict: true}
		case status.IsClockSkew(), status.IsSwarmChanged():
			return verdict{kind: ErrDestination}
		}
		return verdict{kind: ErrNoPathAvailable, failure: path.FailureRelay, evict: true, retry: true}
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return verdict{kind: ErrTimeout, failure: path.FailureRelay, evict: true, retry: true}
	case errors.Is(err, transport.ErrTransport):
		return verdict{kind: ErrNoPathAvailable, failure: path.FailureRelay, culprit: p.Guard().ID(), evict: true, retry: true}
	default:
		// Malformed or oversized responses.
		return verdict{kind: ErrNoPathAvailable, failure: path.FailureRelay, evict: true, retry: true}
	}
}

func appendRelays(exclude []string, p *path.Path) []string {
	out := append([]string(nil), exclude...)
	for _, n := range p.Nodes[1:] {
		out = append(out, n.ID())
	}
	return out
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuthenticationFailure):
		return "authentication_failure"
	case errors.Is(err, ErrDestination):
		return "destination_error"
	case errors.Is(err, ErrQuorumNotMet):
		return "quorum_not_met"
	default:
		return "no_path"
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// SendRPC calls a JSON-RPC method on a storage node through the onion and
// returns the raw result body.
func (c *Client) SendRPC(ctx context.Context, node snode.Node, method string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("onionrelay: encoding %s request: %w", method, err)
	}

	resp, err := c.SendOnionRequest(ctx, payload, snode.StorageNode(node))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetSwarm asks a random storage node for the swarm of sessionID.
func (c *Client) GetSwarm(ctx context.Context, sessionID string) ([]snode.Node, error) {
	if _, err := protocol.StripPrefix(sessionID); err != nil {
		return nil, err
	}

	if err := c.pool.EnsureMinimum(ctx); err != nil && c.pool.Len() == 0 {
		return nil, requestError(ErrNoPathAvailable, err)
	}
	targets := c.pool.Random(1, nil)
	if len(targets) == 0 {
		return nil, requestError(ErrNoPathAvailable, snode.ErrPoolExhausted)
	}

	body, err := c.SendRPC(ctx, targets[0], "get_snodes_for_pubkey", map[string]string{"pubKey": sessionID})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Snodes []snode.Node `json:"snodes"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, requestError(ErrDestination, fmt.Errorf("decoding swarm: %w", err))
	}

	swarm := make([]snode.Node, 0, len(parsed.Snodes))
	for _, n := range parsed.Snodes {
		if n.Validate() == nil {
			swarm = append(swarm, n)
		}
	}
	if len(swarm) == 0 {
		return nil, requestError(ErrDestination, errors.New("empty swarm"))
	}

	logrus.WithFields(logrus.Fields{
		"function": "GetSwarm",
		"target":   targets[0].String(),
		"swarm":    len(swarm),
	}).Debug("Swarm resolved")
	return swarm, nil
}

// SendMessage seals msg for its recipient and stores it on every node of the
// recipient's swarm in parallel. It succeeds when at least half the swarm
// returns a consistent, correctly signed hash and returns those hashes by
// node ID.
func (c *Client) SendMessage(ctx context.Context, msg Message) (map[string]string, error) {
	if len(msg.Body) == 0 {
		return nil, limits.ErrMessageEmpty
	}

	now := c.options.TimeProvider.Now()
	data, err := protocol.EncodeMessage(msg.Body, c.identity, msg.Recipient, now)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateStoreData(data); err != nil {
		return nil, err
	}

	swarm, err := c.GetSwarm(ctx, msg.Recipient)
	if err != nil {
		return nil, err
	}

	ttl := msg.TTL
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	params := map[string]any{
		"pubKey":    msg.Recipient,
		"ttl":       ttl.Milliseconds(),
		"timestamp": now.UnixMilli(),
		"data":      data,
	}

	var (
		mu       sync.Mutex
		hashes   = make(map[string]string, len(swarm))
		failures []error
		g        errgroup.Group
	)
	for _, node := range swarm {
		g.Go(func() error {
			body, err := c.SendRPC(ctx, node, "store", params)
			if err == nil {
				var confirmed map[string]string
				if confirmed, err = quorum.ParseStoreResponse(body, swarm); err == nil {
					mu.Lock()
					for id, h := range confirmed {
						hashes[id] = h
					}
					mu.Unlock()
					return nil
				}
				err = requestError(ErrDestination, err)
			}

			logrus.WithFields(logrus.Fields{
				"function": "SendMessage",
				"node":     node.String(),
				"error":    err.Error(),
			}).Warn("Store request failed")

			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result, err := quorum.Validated(quorum.Consistent(hashes), len(swarm), storeQuorum)
	if err != nil {
		instrument.QuorumFailed()
		return nil, requestError(failureKind(failures, len(hashes)), err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "SendMessage",
		"swarm":     len(swarm),
		"confirmed": len(result),
	}).Info("Message stored")
	return result, nil
}

// failureKind reports a common cause when no node confirmed at all, so a
// send that timed out everywhere surfaces as a timeout.
func failureKind(failures []error, confirmed int) error {
	if confirmed > 0 || len(failures) == 0 {
		return ErrQuorumNotMet
	}
	for _, kind := range []error{ErrTimeout, ErrAuthenticationFailure, ErrNoPathAvailable} {
		all := true
		for _, f := range failures {
			if !errors.Is(f, kind) {
				all = false
				break
			}
		}
		if all {
			return kind
		}
	}
	return ErrQuorumNotMet
}

// probeGuard sends an info request through node as a one-hop path.
func (c *Client) probeGuard(ctx context.Context, node snode.Node) error {
	others := c.pool.Random(1, map[string]bool{node.ID(): true})
	if len(others) == 0 {
		return fmt.Errorf("%w: nothing to probe through %s", path.ErrInsufficientNodes, node.String())
	}

	payload, err := json.Marshal(rpcRequest{Method: "info", Params: struct{}{}})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.RequestTimeout)
	defer cancel()

	resp, err := c.exchange(ctx, []snode.Node{node}, snode.StorageNode(others[0]), payload)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &DestinationError{Status: resp.Status, Body: resp.Body}
	}
	return nil
}
