package limits

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/nacl/box"
)

func TestSealedBoxOverheadMatchesNaCl(t *testing.T) {
	if SealedBoxOverhead != box.AnonymousOverhead {
		t.Errorf("SealedBoxOverhead = %d, want box.AnonymousOverhead = %d", SealedBoxOverhead, box.AnonymousOverhead)
	}
}

func TestValidateOnionPayload(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrMessageEmpty},
		{"one byte", 1, nil},
		{"at limit", MaxOnionPayload, nil},
		{"over limit", MaxOnionPayload + 1, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOnionPayload(bytes.Repeat([]byte{'a'}, tt.size))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateOnionPayload() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStoreData(t *testing.T) {
	if err := ValidateStoreData(""); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty data error = %v, want ErrMessageEmpty", err)
	}
	if err := ValidateStoreData(strings.Repeat("A", MaxStoreData)); err != nil {
		t.Errorf("data at limit error = %v, want nil", err)
	}
	err := ValidateStoreData(strings.Repeat("A", MaxStoreData+1))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized data error = %v, want ErrMessageTooLarge", err)
	}
	if !strings.Contains(err.Error(), "76801") {
		t.Errorf("error %q does not report the actual size", err)
	}
}

func TestValidateResponse(t *testing.T) {
	if err := ValidateResponse(nil); err != nil {
		t.Errorf("empty response error = %v, want nil", err)
	}
	if err := ValidateResponse(make([]byte, MaxOnionResponse+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized response error = %v, want ErrMessageTooLarge", err)
	}
}

func TestValidateMessageSize(t *testing.T) {
	if err := ValidateMessageSize([]byte("abc"), 3); err != nil {
		t.Errorf("ValidateMessageSize() at limit error = %v", err)
	}
	if err := ValidateMessageSize([]byte("abcd"), 3); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("ValidateMessageSize() over limit error = %v", err)
	}
}
