package testnet

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/onion"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/opd-ai/onionrelay/transport"
	"github.com/sirupsen/logrus"
)

// Options configures a Network.
type Options struct {
	// Nodes is the number of storage nodes.
	Nodes int
	// SwarmSize is the number of nodes responsible for each public key.
	SwarmSize int
	// Listen serves every node over Noise on 127.0.0.1.
	Listen bool
}

// DefaultOptions returns a twelve node network with swarms of five.
func DefaultOptions() *Options {
	return &Options{Nodes: 12, SwarmSize: 5}
}

// ServerHandler answers a request delivered to a server destination.
type ServerHandler func(target string, body []byte) (status int, response []byte)

// Server is a non storage destination reachable through the network.
type Server struct {
	host    string
	keys    *crypto.KeyPair
	handler ServerHandler
}

// Destination addresses target on the server.
func (s *Server) Destination(target string) snode.Destination {
	return snode.Server(s.host, target, s.keys.Public, "https", 0)
}

// Network is a set of simulated storage nodes.
type Network struct {
	options Options
	forger  *crypto.Identity
	logger  *logrus.Entry

	mu      sync.RWMutex
	nodes   map[string]*StorageNode
	order   []*StorageNode
	servers map[string]*Server
}

// New starts a network.
func New(options *Options) (*Network, error) {
	if options == nil {
		options = DefaultOptions()
	}
	opts := *options
	if opts.Nodes <= 0 {
		opts.Nodes = DefaultOptions().Nodes
	}
	if opts.SwarmSize <= 0 || opts.SwarmSize > opts.Nodes {
		opts.SwarmSize = min(DefaultOptions().SwarmSize, opts.Nodes)
	}

	forger, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, err
	}

	n := &Network{
		options: opts,
		forger:  forger,
		logger:  logrus.WithField("component", "testnet"),
		nodes:   make(map[string]*StorageNode, opts.Nodes),
		servers: make(map[string]*Server),
	}

	for i := 0; i < opts.Nodes; i++ {
		s, err := newStorageNode(n, i)
		if err != nil {
			n.Close()
			return nil, err
		}
		if opts.Listen {
			if err := s.listen(); err != nil {
				n.Close()
				return nil, fmt.Errorf("testnet: listen: %w", err)
			}
		}
		n.nodes[s.info.ID()] = s
		n.order = append(n.order, s)
	}

	n.logger.WithFields(logrus.Fields{
		"nodes":  opts.Nodes,
		"swarm":  opts.SwarmSize,
		"listen": opts.Listen,
	}).Info("Test network started")
	return n, nil
}

// Close stops any listeners.
func (n *Network) Close() error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var first error
	for _, s := range n.order {
		if err := s.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nodes returns every node in creation order.
func (n *Network) Nodes() []snode.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]snode.Node, len(n.order))
	for i, s := range n.order {
		out[i] = s.info
	}
	return out
}

// Node returns the node with the given ID, or nil.
func (n *Network) Node(id string) *StorageNode {
	return n.node(id)
}

func (n *Network) node(id string) *StorageNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodes[id]
}

// SetFault injects f into the node with the given ID.
func (n *Network) SetFault(id string, f Fault) error {
	s := n.node(id)
	if s == nil {
		return fmt.Errorf("testnet: unknown node %s", id)
	}
	return s.SetFault(f)
}

// FetchCandidateNodes implements snode.Directory.
func (n *Network) FetchCandidateNodes(context.Context) ([]snode.Node, error) {
	return n.Nodes(), nil
}

// Send implements transport.Transport by delivering payload to the node
// in process.
func (n *Network) Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error) {
	s := n.node(to.ID())
	if s == nil {
		return nil, fmt.Errorf("%w: %s: no such node", transport.ErrTransport, to.String())
	}
	return s.handle(ctx, payload)
}

// Swarm returns the nodes responsible for pubKey. Nodes are ranked by the
// hash of the key and their ID, so every node agrees on the result.
func (n *Network) Swarm(pubKey string) []snode.Node {
	nodes := n.Nodes()
	rank := make(map[string]string, len(nodes))
	for _, node := range nodes {
		h := crypto.Hash([]byte(pubKey), []byte(node.ID()))
		rank[node.ID()] = hex.EncodeToString(h[:])
	}
	sort.Slice(nodes, func(i, j int) bool {
		return rank[nodes[i].ID()] < rank[nodes[j].ID()]
	})
	return nodes[:n.options.SwarmSize]
}

func (n *Network) inSwarm(pubKey, id string) bool {
	for _, node := range n.Swarm(pubKey) {
		if node.ID() == id {
			return true
		}
	}
	return false
}

// Messages returns what the node with the given ID holds for pubKey.
func (n *Network) Messages(id, pubKey string) []StoredMessage {
	s := n.node(id)
	if s == nil {
		return nil
	}
	return s.Messages(pubKey)
}

// AddServer registers a server destination under host.
func (n *Network) AddServer(host string, handler ServerHandler) (*Server, error) {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	srv := &Server{host: host, keys: keys, handler: handler}

	n.mu.Lock()
	n.servers[host] = srv
	n.mu.Unlock()
	return srv, nil
}

// forwardToServer delivers the last layer to a server destination the way
// the final relay would over HTTP.
func (n *Network) forwardToServer(hop *onion.Hop) ([]byte, error) {
	n.mu.RLock()
	srv := n.servers[hop.Params.Host]
	n.mu.RUnlock()
	if srv == nil {
		return nil, &transport.StatusError{
			Status: http.StatusBadGateway,
			Body:   []byte("Failed to reach server " + hop.Params.Host),
		}
	}

	frame, err := hop.ForwardFrame()
	if err != nil {
		return nil, err
	}
	layer, err := onion.Peel(frame, srv.keys.Private)
	if err != nil {
		return nil, &transport.StatusError{Status: http.StatusBadRequest, Body: []byte("Failed to decrypt onion request")}
	}

	status, body := srv.handler(hop.Params.Target, layer.Plaintext)
	return onion.EncryptResponse(status, body, layer.SymmetricKey)
}
