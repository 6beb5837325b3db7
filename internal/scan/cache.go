package scan

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sit/internal/tree"
)

// cacheEntry is what Cache keeps per path: the node as computed the last
// time we hashed this file, plus the (size, modTime) it was computed for.
// A hit is only trusted if the live file's size and modTime still match.
type cacheEntry struct {
	size    int64
	modTime time.Time
	node    tree.Node
}

// Persister is the durable half of the cache: a store that survives across
// process runs. internal/repo wires a badger-backed, zstd-compressed
// implementation in via index.go; nil means "memory only".
type Persister interface {
	Load(path string) (size int64, modTime time.Time, node tree.Node, ok bool)
	Save(path string, size int64, modTime time.Time, node tree.Node)
}

// Cache memoizes path → blob hash/content so repeated scans in one process
// (status, add, checkout's dirty check) don't rehash unchanged files. It
// is never authoritative: every hit is verified against the live file's
// size and modTime before being trusted.
type Cache struct {
	mem   *lru.Cache[string, cacheEntry]
	store Persister
}

// NewCache builds an in-memory LRU of the given size, optionally backed by
// a Persister for cross-run memoization.
func NewCache(size int, store Persister) (*Cache, error) {
	if size <= 0 {
		size = 2048
	}
	mem, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{mem: mem, store: store}, nil
}

// Lookup returns the cached node for path if its cached size and modTime
// both match what's passed in.
func (c *Cache) Lookup(path string, size int64, modTime time.Time) (tree.Node, bool) {
	if entry, ok := c.mem.Get(path); ok {
		if entry.size == size && entry.modTime.Equal(modTime) {
			return entry.node, true
		}
		return tree.Node{}, false
	}

	if c.store != nil {
		if storedSize, storedMod, node, ok := c.store.Load(path); ok {
			if storedSize == size && storedMod.Equal(modTime) {
				c.mem.Add(path, cacheEntry{size: size, modTime: modTime, node: node})
				return node, true
			}
		}
	}

	return tree.Node{}, false
}

// Store records the freshly computed node for path under the given size
// and modTime.
func (c *Cache) Store(path string, size int64, modTime time.Time, node tree.Node) {
	c.mem.Add(path, cacheEntry{size: size, modTime: modTime, node: node})
	if c.store != nil {
		c.store.Save(path, size, modTime, node)
	}
}

// Invalidate drops a path from the in-memory cache, used by Repository.Watch
// when fsnotify reports a change before the next scan would naturally
// overwrite the entry.
func (c *Cache) Invalidate(path string) {
	c.mem.Remove(path)
}
