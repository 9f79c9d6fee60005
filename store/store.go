// Package store keeps a local PebbleDB cache of chat messages so the client
// can show a backlog before the first history fetch completes.
package store

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/gosuda/litechat/protocol"
)

// Cache is an append-only message log keyed by 8-byte big-endian sequence
// numbers, so iteration order is arrival order.
type Cache struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

func Open(dir string) (*Cache, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	c := &Cache{db: db}
	it, err := db.NewIter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Last() && len(it.Key()) >= 8 {
		c.next = binary.BigEndian.Uint64(it.Key()[:8]) + 1
	}
	return c, nil
}

func (c *Cache) Append(m protocol.Message) error {
	if c == nil || c.db == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, c.next)
	c.next++
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.db.Set(key, val, pebble.Sync)
}

// LoadRecent returns the newest limit messages in arrival order; limit <= 0
// loads everything.
func (c *Cache) LoadRecent(limit int) ([]protocol.Message, error) {
	if c == nil || c.db == nil {
		return nil, nil
	}
	it, err := c.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	// Walk backwards so a large log only decodes the tail.
	var out []protocol.Message
	for ok := it.Last(); ok; ok = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var m protocol.Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
