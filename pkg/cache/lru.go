// Package cache implements the proxy's shared, byte-bounded LRU response
// cache. It is the one piece of mutable state shared across every
// connection worker (see SPEC_FULL.md §5).
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/arnav-deka/proxycache/pkg/constants"
)

// Entry is a single cached response, keyed by the exact bytes of the
// client request that produced it (the "fingerprint") plus its method.
type Entry struct {
	Key        []byte
	Method     string
	Payload    []byte
	LastAccess time.Time
}

// accountedSize mirrors the original C server's element_size accounting:
// payload + key + method + a fixed per-entry overhead.
func accountedSize(payload, key []byte, method string) int {
	return len(payload) + len(key) + len(method) + constants.CacheEntryOverhead
}

// record is the map/list-backed storage for one Entry. elem links it into
// the LRU list; list.Back() is most-recently-used, list.Front() is least.
type record struct {
	entry *Entry
	size  int
	elem  *list.Element
}

// Cache is a thread-safe, byte-bounded LRU cache. The spec describes a
// singly-linked list scanned linearly for both lookup and eviction; this
// realizes the same externally observable semantics (LRU ordering, byte
// accounting, size caps — see §4.3 and §9) with a map for O(1) lookup and
// a container/list.List for O(1) promotion/eviction, the substitution the
// spec's design notes explicitly invite.
type Cache struct {
	mu         sync.Mutex
	maxTotal   int
	maxElement int
	totalBytes int
	entries    map[string]*record
	order      *list.List

	hits      uint64
	misses    uint64
	evictions uint64
	rejected  uint64
}

// New creates a Cache bounded by maxTotal accounted bytes, rejecting any
// single entry whose accounted size exceeds maxElement.
func New(maxTotal, maxElement int) *Cache {
	return &Cache{
		maxTotal:   maxTotal,
		maxElement: maxElement,
		entries:    make(map[string]*record),
		order:      list.New(),
	}
}

// NewDefault creates a Cache sized per the spec's MAX_TOTAL/MAX_ELEMENT
// constants.
func NewDefault() *Cache {
	return New(constants.MaxTotalCacheBytes, constants.MaxElementBytes)
}

// fingerprintKey maps (fingerprint, method) to a single map key. A NUL
// byte separator is safe because request bytes are themselves terminated
// well before any NUL could appear in practice, and because the method is
// validated against a fixed enum at parse time (§4.1) and can never itself
// contain a NUL — so no (fingerprint, method) pair can collide with a
// different pair under this encoding.
func fingerprintKey(fingerprint []byte, method string) string {
	return string(fingerprint) + "\x00" + method
}

// Lookup returns the entry matching fingerprint and method, bumping its
// last-access time and LRU position on a hit.
func (c *Cache) Lookup(fingerprint []byte, method string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[fingerprintKey(fingerprint, method)]
	if !ok {
		c.misses++
		return nil, false
	}

	rec.entry.LastAccess = time.Now()
	c.order.MoveToBack(rec.elem)
	c.hits++

	return rec.entry, true
}

// Insert stores payload under (fingerprint, method), evicting
// least-recently-used entries until it fits within maxTotal. Returns false
// (advisory — never an error to the client, per §7 ErrCacheRejection) if
// the entry is larger than maxElement on its own.
func (c *Cache) Insert(payload, fingerprint []byte, method string) bool {
	size := accountedSize(payload, fingerprint, method)
	if size > c.maxElement {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return false
	}

	key := fingerprintKey(fingerprint, method)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.totalBytes -= existing.size
		c.order.Remove(existing.elem)
		delete(c.entries, key)
	}

	for c.totalBytes+size > c.maxTotal {
		if !c.evictOneLocked() {
			break
		}
	}

	entryKey := append([]byte(nil), fingerprint...)
	entryPayload := append([]byte(nil), payload...)

	entry := &Entry{
		Key:        entryKey,
		Method:     method,
		Payload:    entryPayload,
		LastAccess: time.Now(),
	}
	elem := c.order.PushBack(key)
	c.entries[key] = &record{entry: entry, size: size, elem: elem}
	c.totalBytes += size

	return true
}

// evictOneLocked removes the least-recently-used entry. Caller must hold
// mu. Returns false if the cache is empty.
func (c *Cache) evictOneLocked() bool {
	front := c.order.Front()
	if front == nil {
		return false
	}
	key := front.Value.(string)
	rec := c.entries[key]

	c.order.Remove(front)
	delete(c.entries, key)
	c.totalBytes -= rec.size
	c.evictions++

	return true
}

// Stats is a point-in-time snapshot of cache counters, consumed by
// pkg/metrics.
type Stats struct {
	Entries    int
	TotalBytes int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Rejected   uint64
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:    len(c.entries),
		TotalBytes: c.totalBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Rejected:   c.rejected,
	}
}
