package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/limits"
	relaynoise "github.com/opd-ai/onionrelay/noise"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
)

// NoiseTransport sends each request over a fresh TCP connection secured
// with a Noise NK handshake against the node's X25519 key. The client side
// is anonymous: only ephemeral keys are used.
type NoiseTransport struct {
	Dialer  net.Dialer
	Timeout time.Duration
}

// NewNoiseTransport creates a transport with the given per-request timeout.
func NewNoiseTransport(timeout time.Duration) *NoiseTransport {
	return &NoiseTransport{Timeout: timeout}
}

// Send implements Transport.
func (t *NoiseTransport) Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	conn, err := t.Dialer.DialContext(ctx, "tcp", to.Address())
	if err != nil {
		return nil, classify(ctx, to, err)
	}
	defer conn.Close()

	stop := closeOnDone(ctx, conn)
	defer stop()

	resp, err := t.exchange(conn, payload, to)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classify(ctx, to, ctx.Err())
		}
		return nil, err
	}

	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: %s: response missing status", ErrTransport, to.String())
	}
	status := int(binary.BigEndian.Uint16(resp))
	body := resp[2:]
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Body: body, Node: to}
	}
	return body, nil
}

func (t *NoiseTransport) exchange(conn net.Conn, payload []byte, to snode.Node) ([]byte, error) {
	hs, err := relaynoise.NewNKInitiator(to.X25519PublicKey[:])
	if err != nil {
		return nil, err
	}

	msg1, err := hs.WriteMessage(nil)
	if err != nil {
		return nil, err
	}
	if err := writeChunk(conn, msg1); err != nil {
		return nil, classify(context.Background(), to, err)
	}

	msg2, err := readChunk(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: handshake: %v", ErrTransport, to.String(), err)
	}
	if _, err := hs.ReadMessage(msg2); err != nil {
		return nil, fmt.Errorf("%w: %s: handshake: %v", ErrTransport, to.String(), err)
	}

	send, recv, err := hs.GetCipherStates()
	if err != nil {
		return nil, err
	}
	if err := writeMessage(conn, send, payload); err != nil {
		return nil, classify(context.Background(), to, err)
	}

	resp, err := readMessage(conn, recv, limits.MaxOnionResponse+2)
	if err != nil {
		return nil, classify(context.Background(), to, err)
	}
	return resp, nil
}

// closeOnDone unblocks any pending I/O on conn when ctx ends. The returned
// function stops the watcher.
func closeOnDone(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Handler answers one request received by a NoiseListener.
type Handler func(ctx context.Context, request []byte) (status int, body []byte)

// NoiseListener accepts Noise NK connections for a node's static key and
// answers one request per connection.
type NoiseListener struct {
	listener net.Listener
	static   [crypto.KeySize]byte
	handler  Handler
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenNoise starts serving handler on address for the holder of keys.
func ListenNoise(address string, keys *crypto.KeyPair, handler Handler) (*NoiseListener, error) {
	if keys == nil || handler == nil {
		return nil, errors.New("transport: ListenNoise needs keys and a handler")
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &NoiseListener{
		listener: ln,
		static:   keys.Private,
		handler:  handler,
		timeout:  30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}

	l.wg.Add(1)
	go l.acceptConnections()

	logrus.WithFields(logrus.Fields{
		"function": "ListenNoise",
		"address":  ln.Addr().String(),
	}).Info("Noise listener started")

	return l, nil
}

// Addr returns the listening address.
func (l *NoiseListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Port returns the listening TCP port.
func (l *NoiseListener) Port() uint16 {
	if tcp, ok := l.listener.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}

// Close stops accepting connections and waits for in-flight requests.
func (l *NoiseListener) Close() error {
	l.cancel()
	err := l.listener.Close()
	l.wg.Wait()
	crypto.ZeroBytes(l.static[:])
	return err
}

func (l *NoiseListener) acceptConnections() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(conn)
		}()
	}
}

func (l *NoiseListener) handleConnection(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(l.timeout))

	if err := l.serve(conn); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnection",
			"remote":   conn.RemoteAddr().String(),
			"error":    err.Error(),
		}).Debug("Noise connection dropped")
	}
}

func (l *NoiseListener) serve(conn net.Conn) error {
	hs, err := relaynoise.NewNKResponder(l.static[:])
	if err != nil {
		return err
	}

	msg1, err := readChunk(conn)
	if err != nil {
		return err
	}
	if _, err := hs.ReadMessage(msg1); err != nil {
		return err
	}
	msg2, err := hs.WriteMessage(nil)
	if err != nil {
		return err
	}
	if err := writeChunk(conn, msg2); err != nil {
		return err
	}

	send, recv, err := hs.GetCipherStates()
	if err != nil {
		return err
	}
	request, err := readMessage(conn, recv, limits.MaxOnionResponse)
	if err != nil {
		return err
	}

	status, body := l.handler(l.ctx, request)
	resp := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(resp, uint16(status))
	copy(resp[2:], body)
	return writeMessage(conn, send, resp)
}
