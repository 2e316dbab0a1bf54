package onion

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/limits"
)

// ErrMalformedResponse is returned when a decrypted response is not the
// expected JSON object.
var ErrMalformedResponse = errors.New("onion: malformed response")

// Response is the destination's answer to an onion request.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the destination answered with a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type responseJSON struct {
	Status     *int            `json:"status,omitempty"`
	StatusCode *int            `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// EncryptResponse is the destination side of DecodeResponse: it seals
// {"status", "body"} under the layer's symmetric key and base64 encodes it.
func EncryptResponse(status int, body []byte, key [crypto.KeySize]byte) ([]byte, error) {
	plaintext, err := json.Marshal(map[string]any{
		"status": status,
		"body":   string(body),
	})
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.EncryptGCM(plaintext, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// DecodeResponse decrypts a guard node's response body. The body is either
// the bare base64 ciphertext or a JSON object {"result": base64}.
func DecodeResponse(raw []byte, key [crypto.KeySize]byte) (*Response, error) {
	if err := limits.ValidateResponse(raw); err != nil {
		return nil, err
	}

	encoded := bytes.TrimSpace(raw)
	if len(encoded) > 0 && encoded[0] == '{' {
		var wrapped struct {
			Result string `json:"result"`
		}
		if err := json.Unmarshal(encoded, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		encoded = []byte(wrapped.Result)
	}

	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(sealed, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedResponse, err)
	}

	plaintext, err := crypto.DecryptGCM(sealed[:n], key)
	if err != nil {
		return nil, err
	}

	var parsed responseJSON
	if err := json.Unmarshal(plaintext, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	resp := &Response{}
	switch {
	case parsed.StatusCode != nil:
		resp.Status = *parsed.StatusCode
	case parsed.Status != nil:
		resp.Status = *parsed.Status
	default:
		return nil, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}

	// Storage nodes send the body as a JSON string holding JSON; other
	// destinations may embed the object directly.
	var text string
	if err := json.Unmarshal(parsed.Body, &text); err == nil {
		resp.Body = []byte(text)
	} else {
		resp.Body = []byte(parsed.Body)
	}
	return resp, nil
}
