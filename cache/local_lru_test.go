package cache

import (
	"testing"
)

func TestLRUCacheSetGet(t *testing.T) {
	cache, err := NewLRUCache(4)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	if ok := cache.Set("key1", "value1", 1); !ok {
		t.Fatal("Set should succeed")
	}
	value, found := cache.Get("key1")
	if !found {
		t.Fatal("Value should be found")
	}
	if value != "value1" {
		t.Fatalf("Expected 'value1', got %v", value)
	}
}

func TestLRUCacheDelete(t *testing.T) {
	cache, err := NewLRUCache(4)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	cache.Delete("key1")
	if _, found := cache.Get("key1"); found {
		t.Fatal("Deleted value should not be found")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache, err := NewLRUCache(2)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("a", 1, 1)
	cache.Set("b", 2, 1)
	cache.Set("c", 3, 1)

	if _, found := cache.Get("a"); found {
		t.Fatal("Oldest entry should be evicted")
	}
	metrics := cache.Metrics()
	if metrics.Evictions != 1 {
		t.Fatalf("Expected 1 eviction, got %d", metrics.Evictions)
	}
	if metrics.Size != 2 {
		t.Fatalf("Expected size 2, got %d", metrics.Size)
	}
}

func TestLRUCacheClear(t *testing.T) {
	cache, err := NewLRUCache(4)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	cache.Clear()
	if _, found := cache.Get("key1"); found {
		t.Fatal("Cleared value should not be found")
	}
}

func TestLRUFactory(t *testing.T) {
	factory := NewLRUFactory(8)
	cache, err := factory.Create()
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	if _, found := cache.Get("key1"); !found {
		t.Fatal("Value should be found")
	}
}
