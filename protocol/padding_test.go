package protocol

import (
	"bytes"
	"testing"
)

func TestPadding(t *testing.T) {
	testCases := []struct {
		name    string
		message []byte
		size    int
	}{
		{"EmptyMessage", []byte{}, 159},
		{"SmallMessage", []byte("Hello world"), 159},
		{"OneBlockExactly", bytes.Repeat([]byte("A"), 158), 159},
		{"SpillsIntoSecondBlock", bytes.Repeat([]byte("B"), 159), 319},
		{"TrailingZeros", []byte{1, 0, 0}, 159},
		{"LargeMessage", bytes.Repeat([]byte("C"), 1000), 1119},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			padded := Pad(tc.message)
			if len(padded) != tc.size {
				t.Errorf("Expected padded size %d, got %d", tc.size, len(padded))
			}
			if len(padded) != PaddedLength(len(tc.message)) {
				t.Errorf("PaddedLength disagrees with Pad: %d vs %d", PaddedLength(len(tc.message)), len(padded))
			}

			unpadded, err := Unpad(padded)
			if err != nil {
				t.Fatalf("Failed to unpad message: %v", err)
			}
			if !bytes.Equal(unpadded, tc.message) {
				t.Errorf("Original message and unpadded message don't match")
			}
		})
	}
}

func TestUnpadRejectsMissingTerminator(t *testing.T) {
	for _, input := range [][]byte{nil, {0, 0, 0}, []byte("no terminator")} {
		if _, err := Unpad(input); err != ErrInvalidPaddedMessage {
			t.Errorf("Unpad(%q) error = %v, want %v", input, err, ErrInvalidPaddedMessage)
		}
	}
}

// FuzzPadding checks that padding always round trips and never panics.
func FuzzPadding(f *testing.F) {
	f.Add([]byte("Hello"))
	f.Add([]byte(""))
	f.Add(make([]byte, 158))
	f.Add([]byte{0x80, 0, 0x80})

	f.Fuzz(func(t *testing.T, message []byte) {
		padded := Pad(message)
		if len(padded)%160 != 159 {
			t.Errorf("padded length %d is not a block boundary", len(padded))
		}
		unpadded, err := Unpad(padded)
		if err != nil {
			t.Fatalf("Unpad failed: %v", err)
		}
		if !bytes.Equal(message, unpadded) {
			t.Errorf("Unpadding failed: got %d bytes, want %d bytes", len(unpadded), len(message))
		}
	})
}
