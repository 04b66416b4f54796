package storage

import (
	"testing"
	"time"

	"github.com/vjranagit/histextract/pkg/source"
	"github.com/vjranagit/histextract/pkg/types"
)

func TestRegionCache(t *testing.T) {
	cache := NewRegionCache(100, 1*time.Minute)

	if _, ok := cache.Get(1); ok {
		t.Error("Expected cache miss, got hit")
	}

	region := source.Region{"RF1": types.Series{{Time: 0, Value: 42}}}
	cache.Put(1, region)

	cached, ok := cache.Get(1)
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}
	if cached["RF1"][0].Value != 42.0 {
		t.Errorf("Expected value 42.0, got %f", cached["RF1"][0].Value)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate() != 50.0 {
		t.Errorf("Expected hit rate 50%%, got %f", stats.HitRate())
	}
}

func TestRegionCacheTTL(t *testing.T) {
	cache := NewRegionCache(100, 100*time.Millisecond)

	cache.Put(7, source.Region{})

	if _, ok := cache.Get(7); !ok {
		t.Error("Expected cache hit")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get(7); ok {
		t.Error("Expected cache miss after TTL expiry")
	}
}

func TestRegionCacheLRUEviction(t *testing.T) {
	cache := NewRegionCache(3, 1*time.Minute)

	for i := uint64(0); i < 4; i++ {
		cache.Put(i, source.Region{})
	}

	if cache.Size() != 3 {
		t.Errorf("Expected cache size 3, got %d", cache.Size())
	}

	if _, ok := cache.Get(0); ok {
		t.Error("Expected region 0 to be evicted")
	}
	if _, ok := cache.Get(3); !ok {
		t.Error("Expected region 3 to be in cache")
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Expected empty cache, got %d", cache.Size())
	}
}

func TestRegionCacheDisabled(t *testing.T) {
	cache := NewRegionCache(0, time.Minute)
	cache.Put(1, source.Region{})
	if cache.Size() != 0 {
		t.Errorf("Expected zero-capacity cache to stay empty, got %d", cache.Size())
	}
}
