// Package cache is the process-local file content cache. It only
// short-circuits content retrieval; permission and existence checks always go
// to the store.
package cache

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
)

// Stamp identifies the cache generation observed before a store read.
type Stamp uint64

// Seq orders mutations. Reserve one inside the transaction that changes the
// store, after its write statement, and pass it to Put, Move or Drop once
// that transaction has committed.
type Seq uint64

type Stats struct {
	Hits       int64
	Misses     int64
	Entries    int
	MaxEntries int
}

// Cache maps paths to the last committed content. Every mutation advances
// the generation, so a Fill computed from a read that raced with a mutation
// is discarded instead of caching stale data. A mutation arriving with an
// older Seq than one already applied only invalidates the paths it touches.
type Cache struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, []byte]
	generation Stamp
	reserved   Seq
	applied    Seq
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

// New returns a cache holding at most maxEntries paths. Zero means unbounded.
func New(maxEntries int) (*Cache, error) {
	size := maxEntries
	if size <= 0 {
		size = math.MaxInt
	}

	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}

	return &Cache{entries: entries, maxEntries: maxEntries}, nil
}

func (c *Cache) Get(path string) ([]byte, bool) {
	c.mu.Lock()
	data, ok := c.entries.Get(path)
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return slices.Clone(data), true
}

// Snapshot returns the current generation. Take it before opening the read
// transaction whose result will be passed to Fill.
func (c *Cache) Snapshot() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Fill caches content read from the store unless a mutation happened since
// stamp was taken. It reports whether the entry was stored.
func (c *Cache) Fill(path string, content []byte, stamp Stamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != stamp {
		return false
	}
	c.entries.Add(path, slices.Clone(content))
	return true
}

// Reserve returns the next mutation sequence number.
func (c *Cache) Reserve() Seq {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reserved++
	return c.reserved
}

// Put overwrites the entry for path with freshly committed content.
func (c *Cache) Put(path string, content []byte, seq Seq) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admit(seq) {
		c.drop(path)
		return
	}
	c.entries.Add(path, slices.Clone(content))
}

// Move relocates the entries for oldPath and its descendants under newPath.
func (c *Cache) Move(oldPath, newPath string, seq Seq) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admit(seq) {
		c.drop(oldPath)
		c.drop(newPath)
		return
	}

	for _, key := range c.entries.Keys() {
		if key != oldPath && !pathutil.IsDescendant(key, oldPath) {
			continue
		}
		data, ok := c.entries.Peek(key)
		c.entries.Remove(key)
		if ok {
			c.entries.Add(pathutil.Rebase(key, oldPath, newPath), data)
		}
	}
}

// Drop removes the entries for path and its descendants.
func (c *Cache) Drop(path string, seq Seq) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.admit(seq)
	c.drop(path)
}

// admit advances the generation and reports whether seq is newer than every
// mutation applied so far. c.mu must be held.
func (c *Cache) admit(seq Seq) bool {
	c.generation++
	if seq <= c.applied {
		return false
	}
	c.applied = seq
	return true
}

func (c *Cache) drop(path string) {
	for _, key := range c.entries.Keys() {
		if key == path || pathutil.IsDescendant(key, path) {
			c.entries.Remove(key)
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := c.entries.Len()
	c.mu.Unlock()

	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Entries:    entries,
		MaxEntries: c.maxEntries,
	}
}
