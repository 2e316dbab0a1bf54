package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSeeds, cfg.Network.Seeds)
	assert.Equal(t, defaultRequestTimeout, cfg.Network.RequestTimeout)
	assert.Equal(t, TransportHTTPS, cfg.Network.Transport)
	assert.Equal(t, 2, cfg.Path.PathCount)
	assert.Equal(t, 3, cfg.Path.PathLength)
	assert.Equal(t, 12, cfg.Path.MinimumPoolSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Cache.File)
	assert.Empty(t, cfg.Metrics.Address)
}

func TestLoadFile(t *testing.T) {
	body := `
[Network]
Seeds = ["https://seed.example.org:4443"]
RequestTimeout = 2500
Transport = "Noise"

[Path]
PathCount = 3
PathLength = 2
MinimumPoolSize = 20
MaxAge = 600

[Cache]
File = "/var/lib/onionrelay/nodes.db"

[Logging]
Level = "DEBUG"
Format = "json"

[Metrics]
Address = "127.0.0.1:9100"
`
	file := filepath.Join(t.TempDir(), "onionrelay.toml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))

	cfg, err := LoadFile(file)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://seed.example.org:4443"}, cfg.Network.Seeds)
	assert.Equal(t, 2500, cfg.Network.RequestTimeout)
	assert.Equal(t, defaultMaxRequestAttempts, cfg.Network.MaxRequestAttempts)
	assert.Equal(t, TransportNoise, cfg.Network.Transport)
	assert.Equal(t, 3, cfg.Path.PathCount)
	assert.Equal(t, 2, cfg.Path.PathLength)
	assert.Equal(t, 600, cfg.Path.MaxAge)
	assert.Equal(t, "/var/lib/onionrelay/nodes.db", cfg.Cache.File)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", `[Network`},
		{"unknown key", "[Network]\nSeedz = []"},
		{"bad transport", "[Network]\nTransport = \"carrier-pigeon\""},
		{"bad seed", "[Network]\nSeeds = [\"not a url\"]"},
		{"bad level", "[Logging]\nLevel = \"loud\""},
		{"bad format", "[Logging]\nFormat = \"xml\""},
		{"pool smaller than path", "[Path]\nPathLength = 3\nMinimumPoolSize = 2"},
		{"path too short", "[Path]\nPathLength = 1"},
		{"path too long", "[Path]\nPathLength = 10"},
		{"negative max age", "[Path]\nMaxAge = -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoggingApply(t *testing.T) {
	prevLevel, prevFormatter := logrus.GetLevel(), logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(prevLevel)
		logrus.SetFormatter(prevFormatter)
	})

	l := &Logging{Level: "warn", Format: "json"}
	require.NoError(t, l.Apply())
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
}
