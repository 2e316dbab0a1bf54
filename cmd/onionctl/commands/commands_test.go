package commands

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, logLevel, identityFile, passphrase = "", "", "", ""

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygenAndSeal(t *testing.T) {
	file := filepath.Join(t.TempDir(), "id")

	out, err := run(t, "keygen", "--identity", file, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Session ID: 05")

	_, err = run(t, "keygen", "--identity", file)
	require.Error(t, err, "existing identity must not be replaced silently")

	recipient, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	sessionID := protocol.SessionID(recipient.X25519.Public)

	out, err = run(t, "seal", sessionID, "hello", "--identity", file)
	require.NoError(t, err)

	data := strings.TrimSpace(out)
	_, err = base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)

	received, err := protocol.DecodeMessage(data, recipient)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(received.Plaintext))
}

func TestPassphraseProtectedIdentity(t *testing.T) {
	file := filepath.Join(t.TempDir(), "id")

	_, err := run(t, "keygen", "--identity", file, "-p", "correct horse")
	require.NoError(t, err)

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), sealedPrefix))

	id, err := loadIdentity(file, "correct horse")
	require.NoError(t, err)
	assert.NotNil(t, id)

	_, err = loadIdentity(file, "")
	assert.Error(t, err)
	_, err = loadIdentity(file, "wrong")
	assert.Error(t, err)
}

func TestIdentityRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "id")
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	require.NoError(t, saveIdentity(file, id, ""))
	loaded, err := loadIdentity(file, "")
	require.NoError(t, err)
	assert.Equal(t, id.Seed, loaded.Seed)
	assert.Equal(t, id.X25519.Public, loaded.X25519.Public)
}

func TestSealRequiresTwoArgs(t *testing.T) {
	_, err := run(t, "seal", "05ab")
	assert.Error(t, err)
}

func TestBadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(file, []byte("[Nope]\nx = 1\n"), 0o600))

	_, err := run(t, "keygen", "--config", file, "--identity", filepath.Join(t.TempDir(), "id"))
	assert.Error(t, err)
}
