package nodecache

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/opd-ai/onionrelay/path"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ path.NodeStore = (*Cache)(nil)

func makeNodes(t *testing.T, n int) []snode.Node {
	t.Helper()
	nodes := make([]snode.Node, n)
	for i := range nodes {
		nodes[i] = snode.Node{IP: fmt.Sprintf("192.0.2.%d", i+1), Port: uint16(30000 + i)}
		_, err := rand.Read(nodes[i].X25519PublicKey[:])
		require.NoError(t, err)
		_, err = rand.Read(nodes[i].Ed25519PublicKey[:])
		require.NoError(t, err)
	}
	return nodes
}

func TestCacheSurvivesReopen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nodes.db")
	nodes := makeNodes(t, 6)
	guards := []snode.Node{nodes[4], nodes[1]}

	c, err := Open(file)
	require.NoError(t, err)
	require.NoError(t, c.SaveNodes(nodes))
	require.NoError(t, c.SaveGuards(guards))
	require.NoError(t, c.Close())

	c, err = Open(file)
	require.NoError(t, err)
	defer c.Close()

	loaded, err := c.LoadNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, nodes, loaded)

	loadedGuards, err := c.LoadGuards()
	require.NoError(t, err)
	assert.Equal(t, guards, loadedGuards, "guard order is preserved")
}

func TestSaveReplacesPreviousContents(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	defer c.Close()

	nodes := makeNodes(t, 5)
	require.NoError(t, c.SaveNodes(nodes))
	require.NoError(t, c.SaveNodes(nodes[:2]))

	loaded, err := c.LoadNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, nodes[:2], loaded)
}

func TestEmptyCache(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	defer c.Close()

	nodes, err := c.LoadNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)

	guards, err := c.LoadGuards()
	require.NoError(t, err)
	assert.Empty(t, guards)
}

func TestClosedCache(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.LoadNodes()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SaveGuards(nil), ErrClosed)
}

func TestManagerRestoresFromCache(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nodes.db")
	c, err := Open(file)
	require.NoError(t, err)
	defer c.Close()

	nodes := makeNodes(t, 8)
	require.NoError(t, c.SaveNodes(nodes))
	require.NoError(t, c.SaveGuards(nodes[:2]))

	cfg := path.DefaultConfig()
	cfg.Store = c
	pool := snode.NewPool(nil, &snode.PoolConfig{MinimumSize: 4, FailureThreshold: 3, MaxAttempts: 1})
	m := path.NewManager(pool, cfg)
	defer m.Close()

	assert.Equal(t, 8, pool.Len())
	assert.Equal(t, nodes[:2], m.Guards())
}
