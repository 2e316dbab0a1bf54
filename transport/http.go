package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opd-ai/onionrelay/limits"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
)

// OnionEndpoint is the path storage nodes serve onion requests on.
const OnionEndpoint = "/onion_req/v2"

// HTTPTransport posts onion frames to guard nodes over HTTPS.
type HTTPTransport struct {
	Client *http.Client
	// Scheme is "https" unless overridden for tests.
	Scheme string
}

// NewHTTPTransport creates a transport with the given per-request timeout.
// A nil tlsConfig accepts the self-signed certificates storage nodes
// present; node identity is established by the onion layer's X25519 keys.
func NewHTTPTransport(timeout time.Duration, tlsConfig *tls.Config) *HTTPTransport {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		}
	}
	return &HTTPTransport{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		Scheme: "https",
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte, to snode.Node) ([]byte, error) {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, to.Address(), OnionEndpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, classify(ctx, to, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limits.MaxOnionResponse+1))
	if err != nil {
		return nil, classify(ctx, to, err)
	}
	if err := limits.ValidateResponse(body); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "HTTPTransport.Send",
		"node":     to.String(),
		"status":   resp.StatusCode,
		"elapsed":  time.Since(start).String(),
	}).Debug("Onion request answered")

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: body, Node: to}
	}
	return body, nil
}
