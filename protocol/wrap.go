package protocol

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EnvelopeType is the kind of message carried by an Envelope.
type EnvelopeType uint32

const (
	// SessionMessage is a one-to-one sealed message.
	SessionMessage EnvelopeType = 6
	// ClosedGroupMessage is a message for a closed group swarm.
	ClosedGroupMessage EnvelopeType = 7
)

// Path and verb of the request that carries an envelope.
const (
	messageVerb = "PUT"
	messagePath = "/api/v1/message"
)

// Protobuf field numbers.
const (
	envelopeType         protowire.Number = 1
	envelopeSource       protowire.Number = 2
	envelopeTimestamp    protowire.Number = 5
	envelopeSourceDevice protowire.Number = 7
	envelopeContent      protowire.Number = 8

	requestVerb protowire.Number = 1
	requestPath protowire.Number = 2
	requestBody protowire.Number = 3
	requestID   protowire.Number = 4

	socketType    protowire.Number = 1
	socketRequest protowire.Number = 2

	socketTypeRequest = 1
)

// Envelope is the outer message stored in a swarm.
type Envelope struct {
	Type         EnvelopeType
	Timestamp    uint64
	Source       string
	SourceDevice uint32
	Content      []byte
}

// Wrap encodes a sealed message as a WebSocketMessage request whose body is
// the Envelope. senderPublicKey is only set for message types that carry a
// visible source, and may be empty.
func Wrap(messageType EnvelopeType, timestamp uint64, senderPublicKey, base64EncodedContent string) ([]byte, error) {
	content, err := base64.StdEncoding.DecodeString(base64EncodedContent)
	if err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedEnvelope, err)
	}

	var env []byte
	env = protowire.AppendTag(env, envelopeType, protowire.VarintType)
	env = protowire.AppendVarint(env, uint64(messageType))
	if senderPublicKey != "" {
		env = protowire.AppendTag(env, envelopeSource, protowire.BytesType)
		env = protowire.AppendString(env, senderPublicKey)
	}
	env = protowire.AppendTag(env, envelopeTimestamp, protowire.VarintType)
	env = protowire.AppendVarint(env, timestamp)
	if senderPublicKey != "" {
		env = protowire.AppendTag(env, envelopeSourceDevice, protowire.VarintType)
		env = protowire.AppendVarint(env, 1)
	}
	env = protowire.AppendTag(env, envelopeContent, protowire.BytesType)
	env = protowire.AppendBytes(env, content)

	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, err
	}

	var req []byte
	req = protowire.AppendTag(req, requestVerb, protowire.BytesType)
	req = protowire.AppendString(req, messageVerb)
	req = protowire.AppendTag(req, requestPath, protowire.BytesType)
	req = protowire.AppendString(req, messagePath)
	req = protowire.AppendTag(req, requestBody, protowire.BytesType)
	req = protowire.AppendBytes(req, env)
	req = protowire.AppendTag(req, requestID, protowire.VarintType)
	req = protowire.AppendVarint(req, binary.LittleEndian.Uint64(id[:]))

	var msg []byte
	msg = protowire.AppendTag(msg, socketType, protowire.VarintType)
	msg = protowire.AppendVarint(msg, socketTypeRequest)
	msg = protowire.AppendTag(msg, socketRequest, protowire.BytesType)
	msg = protowire.AppendBytes(msg, req)
	return msg, nil
}

// Unwrap parses a WebSocketMessage produced by Wrap back into its Envelope.
func Unwrap(data []byte) (*Envelope, error) {
	var request []byte
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		if num == socketType && typ == protowire.VarintType && x != socketTypeRequest {
			return fmt.Errorf("websocket message type %d is not a request", x)
		}
		if num == socketRequest && typ == protowire.BytesType {
			request = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: no request", ErrMalformedEnvelope)
	}

	var body []byte
	err = walkFields(request, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch {
		case num == requestPath && typ == protowire.BytesType && string(v) != messagePath:
			return fmt.Errorf("unexpected request path %q", v)
		case num == requestBody && typ == protowire.BytesType:
			body = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: request has no body", ErrMalformedEnvelope)
	}

	env := &Envelope{}
	err = walkFields(body, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case envelopeType:
			env.Type = EnvelopeType(x)
		case envelopeSource:
			env.Source = string(v)
		case envelopeTimestamp:
			env.Timestamp = x
		case envelopeSourceDevice:
			env.SourceDevice = uint32(x)
		case envelopeContent:
			env.Content = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// walkFields calls fn for every field of a protobuf message. Varints are
// passed in x, length-delimited values in v; other wire types are skipped.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, protowire.ParseError(n))
		}
		data = data[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedEnvelope, num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(num, typ, v, x); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
	}
	return nil
}
