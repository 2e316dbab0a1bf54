package protocol

import "github.com/opd-ai/onionrelay/limits"

// paddingTerminator marks the end of the real message inside a padded
// plaintext.
const paddingTerminator = 0x80

// PaddedLength returns the size of a padded plaintext holding n bytes: the
// message and its terminator rounded up to whole blocks, less one byte.
func PaddedLength(n int) int {
	withTerminator := n + 2
	blocks := withTerminator / limits.PaddingBlockSize
	if withTerminator%limits.PaddingBlockSize != 0 {
		blocks++
	}
	return blocks*limits.PaddingBlockSize - 1
}

// Pad hides the exact message length: the message is followed by 0x80 and
// zero bytes up to PaddedLength.
func Pad(message []byte) []byte {
	padded := make([]byte, PaddedLength(len(message)))
	copy(padded, message)
	padded[len(message)] = paddingTerminator
	return padded
}

// Unpad strips trailing zero bytes and the terminator added by Pad.
func Unpad(padded []byte) ([]byte, error) {
	for i := len(padded) - 1; i >= 0; i-- {
		switch padded[i] {
		case 0:
			continue
		case paddingTerminator:
			return padded[:i], nil
		default:
			return nil, ErrInvalidPaddedMessage
		}
	}
	return nil, ErrInvalidPaddedMessage
}
