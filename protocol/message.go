package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/opd-ai/onionrelay/crypto"
)

// Received is a message recovered from a swarm.
type Received struct {
	Plaintext []byte
	Sender    string
	Timestamp time.Time
}

// EncodeMessage runs the full outbound pipeline: pad, seal for recipientHex,
// wrap as a session message and base64 encode for the store request.
func EncodeMessage(plaintext []byte, sender *crypto.Identity, recipientHex string, sentAt time.Time) (string, error) {
	sealed, err := Seal(Pad(plaintext), sender, recipientHex)
	if err != nil {
		return "", err
	}

	wrapped, err := Wrap(SessionMessage, uint64(sentAt.UnixMilli()), "", base64.StdEncoding.EncodeToString(sealed))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// DecodeMessage reverses EncodeMessage for the recipient.
func DecodeMessage(data string, recipient *crypto.Identity) (*Received, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	env, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}

	padded, sender, err := Open(env.Content, recipient)
	if err != nil {
		return nil, err
	}
	plaintext, err := Unpad(padded)
	if err != nil {
		return nil, err
	}

	return &Received{
		Plaintext: plaintext,
		Sender:    sender,
		Timestamp: time.UnixMilli(int64(env.Timestamp)),
	}, nil
}
