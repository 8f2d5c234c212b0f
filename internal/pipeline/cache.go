package pipeline

import (
	"hash/crc32"
	"sync"

	"github.com/spf13/afero"
)

// Cache remembers the checksum of every output a runner wrote so that
// re-running a task leaves unchanged outputs alone. Watch mode relies on this
// to avoid touching files (and reloading browsers) for no reason.
type Cache struct {
	table   *crc32.Table
	entries map[string]uint32
	mu      sync.RWMutex
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		table:   crc32.MakeTable(crc32.Castagnoli),
		entries: make(map[string]uint32),
	}
}

// Sum returns the checksum used for data.
func (c *Cache) Sum(data []byte) uint32 {
	return crc32.Checksum(data, c.table)
}

// Unchanged reports whether dest was last written with data and still exists.
func (c *Cache) Unchanged(fs afero.Fs, dest string, data []byte) bool {
	c.mu.RLock()
	sum, ok := c.entries[dest]
	c.mu.RUnlock()
	if !ok || sum != c.Sum(data) {
		return false
	}
	_, err := fs.Stat(dest)
	return err == nil
}

// Store records that dest now holds data.
func (c *Cache) Store(dest string, data []byte) {
	sum := c.Sum(data)
	c.mu.Lock()
	c.entries[dest] = sum
	c.mu.Unlock()
}

// Forget drops dest from the cache.
func (c *Cache) Forget(dest string) {
	c.mu.Lock()
	delete(c.entries, dest)
	c.mu.Unlock()
}

// Reset empties the cache, e.g. after the output directory was cleaned.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]uint32)
	c.mu.Unlock()
}

// Len returns the number of cached outputs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
