// Package nodecache persists the storage node pool and the pinned guard
// nodes in a bbolt database so a client can rebuild paths after a restart
// without contacting the seed nodes first.
package nodecache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/onionrelay/snode"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket = "metadata"
	nodesBucket    = "nodes"
	guardsBucket   = "guards"
	versionKey     = "version"

	schemaVersion = 1
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("nodecache: closed")

// Cache is a bbolt backed node store. It implements path.NodeStore.
type Cache struct {
	mu     sync.Mutex
	db     *bolt.DB
	closed bool
}

// Open creates (or loads) the cache at file.
func Open(file string) (*Cache, error) {
	db, err := bolt.Open(file, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("nodecache: open %s: %w", file, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(nodesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(guardsBucket)); err != nil {
			return err
		}

		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != schemaVersion {
				return fmt.Errorf("nodecache: incompatible version %v", b)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{schemaVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"file":     file,
	}).Debug("Node cache opened")

	return &Cache{db: db}, nil
}

// SaveNodes replaces the cached pool.
func (c *Cache) SaveNodes(nodes []snode.Node) error {
	return c.replace(nodesBucket, nodes, func(i int, n snode.Node) []byte {
		return []byte(n.ID())
	})
}

// LoadNodes returns the cached pool ordered by node ID.
func (c *Cache) LoadNodes() ([]snode.Node, error) {
	return c.load(nodesBucket)
}

// SaveGuards replaces the pinned guards, keeping their order.
func (c *Cache) SaveGuards(guards []snode.Node) error {
	return c.replace(guardsBucket, guards, func(i int, _ snode.Node) []byte {
		var k [4]byte
		binary.BigEndian.PutUint32(k[:], uint32(i))
		return k[:]
	})
}

// LoadGuards returns the pinned guards in the order they were saved.
func (c *Cache) LoadGuards() ([]snode.Node, error) {
	return c.load(guardsBucket)
}

func (c *Cache) replace(bucket string, nodes []snode.Node, key func(int, snode.Node) []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucket)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		bkt, err := tx.CreateBucket([]byte(bucket))
		if err != nil {
			return err
		}
		for i, n := range nodes {
			raw, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := bkt.Put(key(i, n), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("nodecache: save %s: %w", bucket, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "replace",
		"bucket":   bucket,
		"count":    len(nodes),
	}).Debug("Node cache updated")
	return nil
}

// load skips entries that no longer decode or validate.
func (c *Cache) load(bucket string) ([]snode.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	var nodes []snode.Node
	err := c.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			var n snode.Node
			if err := json.Unmarshal(v, &n); err != nil || n.Validate() != nil {
				logrus.WithFields(logrus.Fields{
					"function": "load",
					"bucket":   bucket,
				}).Warn("Skipping corrupt cache entry")
				return nil
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("nodecache: load %s: %w", bucket, err)
	}
	return nodes, nil
}

// Close flushes and closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.db.Sync(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
