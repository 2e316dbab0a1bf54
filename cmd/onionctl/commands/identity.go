package commands

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opd-ai/onionrelay/crypto"
)

// Identity files hold the 16-byte seed, either as hex or, when protected by
// a passphrase, as sealedPrefix followed by the base64 sealed seed.
const sealedPrefix = "sealed:"

func saveIdentity(file string, id *crypto.Identity, passphrase string) error {
	var content []byte
	if passphrase != "" {
		sealed, err := crypto.SealSecret(passphrase, id.Seed[:])
		if err != nil {
			return err
		}
		content = []byte(sealedPrefix + base64.StdEncoding.EncodeToString(sealed) + "\n")
	} else {
		content = []byte(hex.EncodeToString(id.Seed[:]) + "\n")
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return err
	}
	return os.WriteFile(file, content, 0o600)
}

func loadIdentity(file, passphrase string) (*crypto.Identity, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	var seed []byte
	if rest, ok := bytes.CutPrefix(raw, []byte(sealedPrefix)); ok {
		if passphrase == "" {
			return nil, errors.New("identity is passphrase protected (-p)")
		}
		sealed, err := base64.StdEncoding.DecodeString(string(rest))
		if err != nil {
			return nil, fmt.Errorf("identity file: %w", err)
		}
		if seed, err = crypto.OpenSecret(passphrase, sealed); err != nil {
			return nil, err
		}
	} else if seed, err = hex.DecodeString(string(raw)); err != nil {
		return nil, fmt.Errorf("identity file: %w", err)
	}
	defer crypto.ZeroBytes(seed)

	if len(seed) != crypto.SeedSize {
		return nil, fmt.Errorf("identity file: seed has %d bytes", len(seed))
	}
	var s [crypto.SeedSize]byte
	copy(s[:], seed)
	return crypto.IdentityFromSeed(s)
}
