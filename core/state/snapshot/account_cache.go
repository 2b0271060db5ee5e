// account_cache.go implements an LRU account cache for snapshot reads.
// It caches raw account data by address hash with configurable capacity,
// tracks hit/miss rates, and supports batch preloading for predicted
// access patterns (e.g., block access lists or prefetcher hints).
package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/eth2028/eth2028/core/types"
)

// SnapshotCacheStats holds hit/miss statistics for SnapshotAccountCache.
type SnapshotCacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Preloads  uint64
	Size      int
	Capacity  int
}

// HitRate returns the hit rate as a value between 0.0 and 1.0.
// Returns 0.0 if no lookups have occurred.
func (s SnapshotCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// cacheEntry is a doubly-linked list node for LRU ordering.
type cacheEntry struct {
	key  types.Hash
	data []byte // raw account data (nil means cached deletion)
	prev *cacheEntry
	next *cacheEntry
}

// SnapshotAccountCache provides an LRU cache for snapshot account data,
// keyed by account hash. It reduces disk and diff-layer lookups by caching
// recently accessed accounts. All methods are safe for concurrent use.
type SnapshotAccountCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[types.Hash]*cacheEntry

	// Doubly-linked list for LRU ordering.
	// head = most recently used, tail = least recently used.
	head *cacheEntry
	tail *cacheEntry

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	preloads  atomic.Uint64
}

// NewSnapshotAccountCache creates a new account cache with the given maximum
// capacity. If capacity is less than 1, it is set to 1.
func NewSnapshotAccountCache(capacity int) *SnapshotAccountCache {
	if capacity < 1 {
		capacity = 1
	}
	return &SnapshotAccountCache{
		capacity: capacity,
		entries:  make(map[types.Hash]*cacheEntry, capacity),
	}
}

// Get retrieves cached account data by hash. Returns (data, true) on a cache
// hit, or (nil, false) on a miss. A hit for a cached deletion returns
// (nil, true). The accessed entry is promoted to the front (most recently used).
func (c *SnapshotAccountCache) Get(hash types.Hash) ([]byte, bool) {
	c.mu.Lock()
	entry, ok := c.entries[hash]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	c.moveToFront(entry)
	// Copy the data to avoid caller mutations affecting the cache.
	result := cloneBytes(entry.data)
	c.mu.Unlock()
	c.hits.Add(1)
	return result, true
}

// Put stores account data in the cache. If the cache is at capacity, the
// least recently used entry is evicted. Data is copied before storage.
// Passing nil data caches a deletion marker.
func (c *SnapshotAccountCache) Put(hash types.Hash, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[hash]; ok {
		// Update existing entry.
		entry.data = cloneBytes(data)
		c.moveToFront(entry)
		return
	}

	// Evict if at capacity.
	if len(c.entries) >= c.capacity {
		c.evictTail()
	}

	entry := &cacheEntry{
		key:  hash,
		data: cloneBytes(data),
	}
	c.entries[hash] = entry
	c.pushFront(entry)
}

// Delete removes a specific entry from the cache.
func (c *SnapshotAccountCache) Delete(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		return
	}
	c.detach(entry)
	delete(c.entries, hash)
}

// Preload inserts multiple account entries into the cache in a single batch.
// This is useful for predicted access patterns such as block access lists.
// Entries already in the cache are promoted but not overwritten.
func (c *SnapshotAccountCache) Preload(accounts map[types.Hash][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := uint64(0)
	for hash, data := range accounts {
		if entry, ok := c.entries[hash]; ok {
			// Already cached: promote to front but do not overwrite.
			c.moveToFront(entry)
			continue
		}
		// Evict if needed.
		if len(c.entries) >= c.capacity {
			c.evictTail()
		}
		entry := &cacheEntry{
			key:  hash,
			data: cloneBytes(data),
		}
		c.entries[hash] = entry
		c.pushFront(entry)
		count++
	}
	c.preloads.Add(count)
}

// PreloadHashes loads account data from a snapshot for the given hashes.
// This is useful when a block access list or prefetcher provides a set of
// addresses that will be accessed during execution.
func (c *SnapshotAccountCache) PreloadHashes(snap Snapshot, hashes []types.Hash) {
	if snap == nil || len(hashes) == 0 {
		return
	}
	batch := make(map[types.Hash][]byte, len(hashes))
	for _, hash := range hashes {
		acct, err := snap.Account(hash)
		if err != nil {
			continue
		}
		if acct != nil {
			// Store a non-nil marker. Full account data would come from
			// the snapshot layer itself; we cache the raw lookup result.
			batch[hash] = []byte{1}
		}
	}
	c.Preload(batch)
}

// Contains returns true if the given hash is in the cache.
func (c *SnapshotAccountCache) Contains(hash types.Hash) bool {
	c.mu.Lock()
	_, ok := c.entries[hash]
	c.mu.Unlock()
	return ok
}

// Len returns the number of entries currently in the cache.
func (c *SnapshotAccountCache) Len() int {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return n
}

// Cap returns the maximum capacity of the cache.
func (c *SnapshotAccountCache) Cap() int {
	return c.capacity
}

// Clear removes all entries and resets all statistics.
func (c *SnapshotAccountCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[types.Hash]*cacheEntry, c.capacity)
	c.head = nil
	c.tail = nil
	c.mu.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.preloads.Store(0)
}

// Stats returns a point-in-time snapshot of cache statistics.
func (c *SnapshotAccountCache) Stats() SnapshotCacheStats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	return SnapshotCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Preloads:  c.preloads.Load(),
		Size:      size,
		Capacity:  c.capacity,
	}
}

// Keys returns all keys currently in the cache, ordered from most recently
// used to least recently used. Intended for diagnostics.
func (c *SnapshotAccountCache) Keys() []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]types.Hash, 0, len(c.entries))
	for cur := c.head; cur != nil; cur = cur.next {
		keys = append(keys, cur.key)
	}
	return keys
}

// --- internal linked-list operations (caller must hold c.mu) ---

// moveToFront detaches an entry from its current position and pushes it to
// the front of the list.
func (c *SnapshotAccountCache) moveToFront(entry *cacheEntry) {
	if c.head == entry {
		return
	}
	c.detach(entry)
	c.pushFront(entry)
}

// pushFront inserts an entry at the front (head) of the list.
func (c *SnapshotAccountCache) pushFront(entry *cacheEntry) {
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

// detach removes an entry from the linked list without deleting it from the
// map.
func (c *SnapshotAccountCache) detach(entry *cacheEntry) {
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
	entry.prev = nil
	entry.next = nil
}

// evictTail removes the least recently used entry from the cache.
func (c *SnapshotAccountCache) evictTail() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.detach(evicted)
	delete(c.entries, evicted.key)
	c.evictions.Add(1)
}

// cloneBytes returns a copy of the byte slice. Returns nil for nil input.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
