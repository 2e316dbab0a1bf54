package protocol

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestWrapUnwrap(t *testing.T) {
	content := []byte{0xde, 0xad, 0xbe, 0xef}
	b64 := base64.StdEncoding.EncodeToString(content)

	wrapped, err := Wrap(SessionMessage, 1700000000123, "", b64)
	require.NoError(t, err)

	env, err := Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, SessionMessage, env.Type)
	assert.Equal(t, uint64(1700000000123), env.Timestamp)
	assert.Equal(t, content, env.Content)
	assert.Empty(t, env.Source)

	wrapped, err = Wrap(ClosedGroupMessage, 1, "05abcdef", b64)
	require.NoError(t, err)
	env, err = Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "05abcdef", env.Source)
	assert.Equal(t, uint32(1), env.SourceDevice)
}

func TestWrapLayout(t *testing.T) {
	wrapped, err := Wrap(SessionMessage, 5, "", base64.StdEncoding.EncodeToString([]byte("c")))
	require.NoError(t, err)

	// WebSocketMessage{type: REQUEST}
	num, typ, n := protowire.ConsumeTag(wrapped)
	require.Greater(t, n, 0)
	assert.Equal(t, protowire.Number(1), num)
	assert.Equal(t, protowire.VarintType, typ)
	v, m := protowire.ConsumeVarint(wrapped[n:])
	require.Greater(t, m, 0)
	assert.Equal(t, uint64(1), v)

	var verb, path string
	request, _ := protowire.ConsumeBytes(wrapped[n+m+1:])
	require.NoError(t, walkFields(request, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case requestVerb:
			verb = string(v)
		case requestPath:
			path = string(v)
		}
		return nil
	}))
	assert.Equal(t, "PUT", verb)
	assert.Equal(t, "/api/v1/message", path)
}

func TestUnwrapMalformed(t *testing.T) {
	_, err := Unwrap([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = Unwrap(nil)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = Wrap(SessionMessage, 1, "", "%%%")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestEncodeDecodeMessage(t *testing.T) {
	sender := newIdentity(t)
	recipient := newIdentity(t)
	sentAt := time.UnixMilli(1700000000456)

	data, err := EncodeMessage([]byte("hi bob"), sender, SessionID(recipient.X25519.Public), sentAt)
	require.NoError(t, err)

	got, err := DecodeMessage(data, recipient)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi bob"), got.Plaintext)
	assert.Equal(t, SessionID(sender.X25519.Public), got.Sender)
	assert.True(t, sentAt.Equal(got.Timestamp))
}
