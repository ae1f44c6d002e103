// Package cache keeps recently loaded trees keyed by a digest of their input,
// so servers diffing the same document repeatedly parse it once.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

// DefaultSize is the default input volume the cache may hold (64 MB).
const DefaultSize = 64 << 20

// bytesPerKB is the number of bytes in a kilobyte.
const bytesPerKB = 1024.0

// Key identifies one load: the digest of name, options and content.
type Key [sha256.Size]byte

// KeyOf digests parts with length prefixes, so ("ab","c") and ("a","bc") differ.
func KeyOf(parts ...[]byte) Key {
	hasher := sha256.New()

	var prefix [binary.MaxVarintLen64]byte

	for _, part := range parts {
		n := binary.PutUvarint(prefix[:], uint64(len(part)))
		hasher.Write(prefix[:n])
		hasher.Write(part)
	}

	var key Key

	copy(key[:], hasher.Sum(nil))

	return key
}

// TreeCache is an LRU of parsed trees bounded by the size of the inputs they
// were parsed from. Trees are immutable once built, so cached trees are
// shared between callers.
type TreeCache struct {
	mu          sync.Mutex
	entries     map[Key]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key         Key
	tree        *tree.Tree
	size        int64
	accessCount int64
	prev        *lruEntry
	next        *lruEntry
}

// evictionCost favors keeping small, frequently used trees.
func (e *lruEntry) evictionCost() float64 {
	sizeKB := max(float64(e.size)/bytesPerKB, 1)

	return float64(e.accessCount) / sizeKB
}

// New creates a cache holding at most maxSize input bytes. A non-positive
// maxSize uses DefaultSize.
func New(maxSize int64) *TreeCache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}

	return &TreeCache{
		entries: make(map[Key]*lruEntry),
		maxSize: maxSize,
	}
}

// Get returns the cached tree for key, or nil.
func (c *TreeCache) Get(key Key) *tree.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return nil
	}

	c.hits.Add(1)

	entry.accessCount++
	c.moveToFront(entry)

	return entry.tree
}

// Put stores t under key, charging size bytes. Trees larger than the whole
// cache are not stored.
func (c *TreeCache) Put(key Key, t *tree.Tree, size int64) {
	if t == nil || size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.accessCount++
		c.moveToFront(entry)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	entry := &lruEntry{key: key, tree: t, size: size, accessCount: 1}

	c.entries[key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Load returns the tree for content, parsing it with treeio.Load on a miss.
// Failed loads are not cached.
func (c *TreeCache) Load(name string, content []byte, opts treeio.Options) (*tree.Tree, error) {
	var limit [8]byte

	binary.BigEndian.PutUint64(limit[:], opts.MaxInputSize)

	key := KeyOf([]byte(name), []byte(opts.Format), []byte(opts.Language), limit[:], content)

	if cached := c.Get(key); cached != nil {
		return cached, nil
	}

	loaded, err := treeio.Load(name, content, opts)
	if err != nil {
		return nil, err
	}

	c.Put(key, loaded, int64(len(content)))

	return loaded, nil
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *TreeCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Clear removes every entry. Counters are kept.
func (c *TreeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*lruEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

func (c *TreeCache) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

func (c *TreeCache) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *TreeCache) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

// evictionSampleSize bounds how many tail entries are compared per eviction.
const evictionSampleSize = 5

// evictLowestCost removes the cheapest of the least recently used entries.
func (c *TreeCache) evictLowestCost() {
	victim := c.tail
	if victim == nil {
		return
	}

	lowestCost := victim.evictionCost()

	for entry, seen := victim.prev, 1; entry != nil && seen < evictionSampleSize; entry, seen = entry.prev, seen+1 {
		if cost := entry.evictionCost(); cost < lowestCost {
			lowestCost = cost
			victim = entry
		}
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.size
}
