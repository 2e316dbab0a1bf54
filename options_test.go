package onionrelay

import (
	"testing"

	"github.com/opd-ai/onionrelay/config"
	"github.com/stretchr/testify/require"
)

func configForTest(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load([]byte(`
[Network]
RequestTimeout = 1500
Transport = "noise"

[Path]
PathLength = 2
MinimumPoolSize = 16
MaxAge = 600

[Cache]
File = "/tmp/nodes.db"
`))
	require.NoError(t, err)
	return cfg
}
