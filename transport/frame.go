package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

// maxChunk is the largest Noise transport message; each chunk carries at
// most maxChunk-16 bytes of plaintext.
const (
	maxChunk     = 65535
	maxPlaintext = maxChunk - 16
)

var errFrameTooLarge = errors.New("frame exceeds size limit")

// writeChunk writes a 2-byte big-endian length followed by data.
func writeChunk(w io.Writer, data []byte) error {
	if len(data) > maxChunk {
		return errFrameTooLarge
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readChunk reads one length-prefixed chunk. io.ReadFull guards against
// partial reads on stream sockets.
func readChunk(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeMessage encrypts a message of any size as an encrypted 4-byte length
// chunk followed by as many data chunks as needed.
func writeMessage(w io.Writer, cs *noise.CipherState, message []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(message)))
	header, err := cs.Encrypt(nil, nil, length[:])
	if err != nil {
		return err
	}
	if err := writeChunk(w, header); err != nil {
		return err
	}

	for len(message) > 0 {
		n := min(len(message), maxPlaintext)
		chunk, err := cs.Encrypt(nil, nil, message[:n])
		if err != nil {
			return err
		}
		if err := writeChunk(w, chunk); err != nil {
			return err
		}
		message = message[n:]
	}
	return nil
}

// readMessage is the inverse of writeMessage. Messages longer than limit
// are rejected before any data chunk is read.
func readMessage(r io.Reader, cs *noise.CipherState, limit int) ([]byte, error) {
	chunk, err := readChunk(r)
	if err != nil {
		return nil, err
	}
	header, err := cs.Decrypt(nil, nil, chunk)
	if err != nil {
		return nil, err
	}
	if len(header) != 4 {
		return nil, fmt.Errorf("bad length header of %d bytes", len(header))
	}
	length := int(binary.BigEndian.Uint32(header))
	if length > limit {
		return nil, fmt.Errorf("%w: %d > %d", errFrameTooLarge, length, limit)
	}

	message := make([]byte, 0, length)
	for len(message) < length {
		chunk, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		plain, err := cs.Decrypt(nil, nil, chunk)
		if err != nil {
			return nil, err
		}
		message = append(message, plain...)
	}
	if len(message) != length {
		return nil, fmt.Errorf("message length %d, header said %d", len(message), length)
	}
	return message, nil
}
