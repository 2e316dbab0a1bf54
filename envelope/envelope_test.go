package envelope

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFraming(t *testing.T) {
	ciphertext := []byte{1, 2, 3, 4, 5}

	frame, err := Encode(ciphertext, map[string]string{"headers": ""})
	require.NoError(t, err)

	jsonBytes := []byte(`{"headers":""}`)
	assert.Len(t, frame, 4+5+len(jsonBytes))
	assert.Equal(t, []byte{5, 0, 0, 0}, frame[:4])
	assert.Equal(t, ciphertext, frame[4:9])
	assert.Equal(t, jsonBytes, frame[9:])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type hop struct {
		Destination  string `json:"destination"`
		EphemeralKey string `json:"ephemeral_key"`
	}

	tests := []struct {
		name       string
		ciphertext []byte
		metadata   hop
	}{
		{"relay hop", []byte("ciphertext"), hop{"aa", "bb"}},
		{"empty ciphertext", nil, hop{"", "cc"}},
		{"binary ciphertext", []byte{0, 0xff, '{', '}', 0}, hop{"dd", "ee"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.ciphertext, tt.metadata)
			require.NoError(t, err)

			var got hop
			ct, err := DecodeInto(frame, &got)
			require.NoError(t, err)
			assert.Equal(t, len(tt.ciphertext), len(ct))
			assert.Equal(t, tt.metadata, got)
		})
	}
}

func TestEncodeRejectsBadMetadata(t *testing.T) {
	_, err := Encode([]byte("x"), make(chan int))
	assert.ErrorIs(t, err, ErrMalformedMetadata)

	_, err = Encode([]byte("x"), []string{"not", "an", "object"})
	assert.ErrorIs(t, err, ErrMalformedMetadata)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte{1, 0})
	assert.ErrorIs(t, err, ErrShortFrame)

	tooLong := make([]byte, 4)
	binary.LittleEndian.PutUint32(tooLong, 10)
	_, _, err = Decode(append(tooLong, []byte("{}")...))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	noJSON := []byte{1, 0, 0, 0, 'a'}
	_, _, err = Decode(noJSON)
	assert.ErrorIs(t, err, ErrMalformedMetadata)

	badJSON := append([]byte{1, 0, 0, 0, 'a'}, []byte(`{"a":}`)...)
	_, _, err = Decode(badJSON)
	assert.ErrorIs(t, err, ErrMalformedMetadata)
}

func TestDecodeRawMetadata(t *testing.T) {
	frame, err := Encode([]byte("abc"), EmptyHeaders)
	require.NoError(t, err)

	ct, meta, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), ct)

	var m map[string]string
	require.NoError(t, json.Unmarshal(meta, &m))
	assert.Equal(t, "", m["headers"])
}
