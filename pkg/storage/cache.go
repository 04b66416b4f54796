package storage

import (
	"container/list"
	"sync"
	"time"

	"github.com/vjranagit/histextract/pkg/source"
)

// RegionCache implements an LRU cache for decoded history regions
type RegionCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[uint64]*cacheEntry
	lru      *list.List
	hits     uint64
	misses   uint64
}

// cacheEntry represents a cached region
type cacheEntry struct {
	key       uint64
	region    source.Region
	timestamp time.Time
	element   *list.Element
}

// NewRegionCache creates a new region cache
func NewRegionCache(capacity int, ttl time.Duration) *RegionCache {
	return &RegionCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[uint64]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a cached region by fingerprint
func (rc *RegionCache) Get(key uint64) (source.Region, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, exists := rc.cache[key]
	if !exists {
		rc.misses++
		return nil, false
	}

	if rc.ttl > 0 && time.Since(entry.timestamp) > rc.ttl {
		rc.removeLocked(key)
		rc.misses++
		return nil, false
	}

	rc.lru.MoveToFront(entry.element)
	rc.hits++

	return entry.region, true
}

// Put stores a region in the cache
func (rc *RegionCache) Put(key uint64, region source.Region) {
	if rc.capacity <= 0 {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if entry, exists := rc.cache[key]; exists {
		entry.region = region
		entry.timestamp = time.Now()
		rc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       key,
		region:    region,
		timestamp: time.Now(),
	}
	entry.element = rc.lru.PushFront(entry)
	rc.cache[key] = entry

	// Evict oldest entry if cache is full
	if rc.lru.Len() > rc.capacity {
		if oldest := rc.lru.Back(); oldest != nil {
			rc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

// removeLocked removes an entry from the cache (must hold lock)
func (rc *RegionCache) removeLocked(key uint64) {
	if entry, exists := rc.cache[key]; exists {
		rc.lru.Remove(entry.element)
		delete(rc.cache, key)
	}
}

// Clear clears all cache entries
func (rc *RegionCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache = make(map[uint64]*cacheEntry)
	rc.lru = list.New()
}

// Size returns the current cache size
func (rc *RegionCache) Size() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.cache)
}

// Stats returns cache statistics
func (rc *RegionCache) Stats() CacheStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	expired := 0
	if rc.ttl > 0 {
		for _, entry := range rc.cache {
			if time.Since(entry.timestamp) > rc.ttl {
				expired++
			}
		}
	}

	return CacheStats{
		Size:     len(rc.cache),
		Capacity: rc.capacity,
		Expired:  expired,
		Hits:     rc.hits,
		Misses:   rc.misses,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
	Hits     uint64
	Misses   uint64
}

// HitRate returns the hit rate as a percentage
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
