package testnet

import (
	"context"
	crand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/limits"
	"github.com/opd-ai/onionrelay/onion"
	"github.com/opd-ai/onionrelay/quorum"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/opd-ai/onionrelay/transport"
	"github.com/sirupsen/logrus"
)

// Fault is a misbehavior injected into a node.
type Fault int

const (
	FaultNone Fault = iota
	// FaultTimeout never answers.
	FaultTimeout
	// FaultOffline refuses connections; relays report it as not found.
	FaultOffline
	// FaultWrongKey decrypts with a key other than the advertised one.
	FaultWrongKey
	// FaultUnsignedStore signs store confirmations with a foreign key.
	FaultUnsignedStore
	// FaultBadResponse encrypts its answers under a random key.
	FaultBadResponse
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultTimeout:
		return "timeout"
	case FaultOffline:
		return "offline"
	case FaultWrongKey:
		return "wrong_key"
	case FaultUnsignedStore:
		return "unsigned_store"
	case FaultBadResponse:
		return "bad_response"
	default:
		return fmt.Sprintf("Fault(%d)", int(f))
	}
}

// StoredMessage is a message held by a node.
type StoredMessage struct {
	Hash      string
	Data      string
	TTL       int64
	Timestamp int64
}

// NodeMetrics counts what a node has done.
type NodeMetrics struct {
	Requests  int64
	Forwarded int64
	Served    int64
}

// StorageNode is one simulated node.
type StorageNode struct {
	info     snode.Node
	identity *crypto.Identity
	network  *Network
	listener *transport.NoiseListener
	logger   *logrus.Entry

	mu       sync.Mutex
	fault    Fault
	wrongKey *crypto.KeyPair
	messages map[string][]StoredMessage

	requests  atomic.Int64
	forwarded atomic.Int64
	served    atomic.Int64
}

func newStorageNode(network *Network, index int) (*StorageNode, error) {
	identity, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	s := &StorageNode{
		identity: identity,
		network:  network,
		messages: make(map[string][]StoredMessage),
	}
	s.info = snode.Node{
		IP:              fmt.Sprintf("10.%d.%d.%d", 1+index/65536, (index/256)%256, 1+index%256),
		Port:            uint16(20000 + index),
		X25519PublicKey: identity.X25519.Public,
	}
	copy(s.info.Ed25519PublicKey[:], identity.Ed25519PublicKey)
	s.logger = logrus.WithFields(logrus.Fields{
		"component": "testnet",
		"node":      s.info.ID()[:8],
	})
	return s, nil
}

// listen serves the node over Noise on localhost and readdresses it.
func (s *StorageNode) listen() error {
	ln, err := transport.ListenNoise("127.0.0.1:0", &s.identity.X25519, s.serveNoise)
	if err != nil {
		return err
	}
	s.listener = ln
	s.info.IP = "127.0.0.1"
	s.info.Port = ln.Port()
	return nil
}

// Info returns the node as clients see it.
func (s *StorageNode) Info() snode.Node {
	return s.info
}

// Fault returns the injected fault.
func (s *StorageNode) Fault() Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// SetFault injects f, replacing any previous fault.
func (s *StorageNode) SetFault(f Fault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f == FaultWrongKey && s.wrongKey == nil {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		s.wrongKey = kp
	}
	s.fault = f
	s.logger.WithField("fault", f.String()).Debug("Fault injected")
	return nil
}

// Messages returns the messages stored for pubKey.
func (s *StorageNode) Messages(pubKey string) []StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredMessage(nil), s.messages[pubKey]...)
}

// Metrics returns the node's counters.
func (s *StorageNode) Metrics() NodeMetrics {
	return NodeMetrics{
		Requests:  s.requests.Load(),
		Forwarded: s.forwarded.Load(),
		Served:    s.served.Load(),
	}
}

func (s *StorageNode) onionKey() [crypto.KeySize]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault == FaultWrongKey {
		return s.wrongKey.Private
	}
	return s.identity.X25519.Private
}

func (s *StorageNode) statusError(status int, body string) error {
	return &transport.StatusError{Status: status, Body: []byte(body), Node: s.info}
}

// handle processes one onion frame the way a storage node's onion endpoint
// does: peel, then forward or answer.
func (s *StorageNode) handle(ctx context.Context, frame []byte) ([]byte, error) {
	s.requests.Add(1)

	switch s.Fault() {
	case FaultTimeout:
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %s", transport.ErrTimeout, s.info.String())
	case FaultOffline:
		return nil, fmt.Errorf("%w: %s: connection refused", transport.ErrTransport, s.info.String())
	}

	layer, err := onion.Peel(frame, s.onionKey())
	if err != nil {
		if errors.Is(err, crypto.ErrAuthenticationFailed) {
			return nil, s.statusError(http.StatusBadRequest, "Failed to decrypt onion request")
		}
		return nil, s.statusError(http.StatusBadRequest, "Invalid onion request: "+err.Error())
	}
	hop, err := layer.Route()
	if err != nil {
		return nil, s.statusError(http.StatusBadRequest, "Invalid onion request: "+err.Error())
	}

	switch {
	case hop.IsFinal():
		return s.answer(hop.Ciphertext, layer.SymmetricKey)
	case hop.Params.Host != "":
		s.forwarded.Add(1)
		return s.network.forwardToServer(hop)
	}

	next := s.network.node(hop.Params.Destination)
	if next == nil || next.Fault() == FaultOffline {
		return nil, s.statusError(http.StatusBadGateway, "Next node not found: "+hop.Params.Destination)
	}
	forward, err := hop.ForwardFrame()
	if err != nil {
		return nil, s.statusError(http.StatusBadRequest, err.Error())
	}
	s.forwarded.Add(1)
	return next.handle(ctx, forward)
}

func (s *StorageNode) serveNoise(ctx context.Context, request []byte) (int, []byte) {
	body, err := s.handle(ctx, request)
	var status *transport.StatusError
	switch {
	case err == nil:
		return http.StatusOK, body
	case errors.As(err, &status):
		return status.Status, status.Body
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout, []byte("Request timed out")
	default:
		return http.StatusBadGateway, []byte(err.Error())
	}
}

// answer runs the RPC carried by the innermost layer and encrypts the reply
// for the client.
func (s *StorageNode) answer(payload []byte, key [crypto.KeySize]byte) ([]byte, error) {
	s.served.Add(1)
	status, body := s.rpc(payload)

	if s.Fault() == FaultBadResponse {
		if _, err := crand.Read(key[:]); err != nil {
			return nil, err
		}
	}
	return onion.EncryptResponse(status, body, key)
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *StorageNode) rpc(payload []byte) (int, []byte) {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return http.StatusBadRequest, []byte("invalid json request")
	}

	switch req.Method {
	case "info":
		return jsonReply(map[string]any{
			"version":   []int{2, 8, 0},
			"timestamp": time.Now().UnixMilli(),
		})
	case "get_snodes_for_pubkey":
		var p struct {
			PubKey string `json:"pubKey"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.PubKey == "" {
			return http.StatusBadRequest, []byte("invalid params")
		}
		return jsonReply(map[string]any{"snodes": s.network.Swarm(p.PubKey)})
	case "store":
		return s.store(req.Params)
	default:
		return http.StatusBadRequest, []byte(fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *StorageNode) store(raw json.RawMessage) (int, []byte) {
	var p struct {
		PubKey    string `json:"pubKey"`
		TTL       int64  `json:"ttl"`
		Timestamp int64  `json:"timestamp"`
		Data      string `json:"data"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.PubKey == "" {
		return http.StatusBadRequest, []byte("invalid params")
	}
	if !s.network.inSwarm(p.PubKey, s.info.ID()) {
		return http.StatusMisdirectedRequest, []byte("node is not in the swarm of " + p.PubKey)
	}
	if err := limits.ValidateStoreData(p.Data); err != nil {
		return http.StatusRequestEntityTooLarge, []byte(err.Error())
	}
	if _, err := base64.StdEncoding.DecodeString(p.Data); err != nil {
		return http.StatusBadRequest, []byte("data is not base64")
	}

	digest := crypto.Hash([]byte(p.PubKey), []byte(p.Data))
	hash := base64.RawStdEncoding.EncodeToString(digest[:])

	s.mu.Lock()
	s.messages[p.PubKey] = append(s.messages[p.PubKey], StoredMessage{
		Hash:      hash,
		Data:      p.Data,
		TTL:       p.TTL,
		Timestamp: p.Timestamp,
	})
	signer := s.identity.Ed25519PrivateKey
	if s.fault == FaultUnsignedStore {
		signer = s.network.forger.Ed25519PrivateKey
	}
	s.mu.Unlock()

	entry, err := quorum.SignStoreEntry(hash, func(m []byte) ([]byte, error) {
		sig, err := crypto.Sign(m, signer)
		return sig[:], err
	})
	if err != nil {
		return http.StatusInternalServerError, []byte(err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"pubkey": p.PubKey[:min(10, len(p.PubKey))],
		"hash":   hash[:8],
	}).Debug("Message stored")

	return jsonReply(map[string]any{"swarm": map[string]any{s.info.ID(): entry}})
}

func jsonReply(v any) (int, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		return http.StatusInternalServerError, []byte(err.Error())
	}
	return http.StatusOK, body
}

func (s *StorageNode) close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
