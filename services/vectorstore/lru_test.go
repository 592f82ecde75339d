// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRUCache_GetSet(t *testing.T) {
	cache := NewLRUCache[string, int](3)

	if _, ok := cache.Get("a"); ok {
		t.Error("expected miss on empty cache")
	}

	cache.Set("a", 1)
	cache.Set("b", 2)

	if v, ok := cache.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v, want 1, true", v, ok)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	cache := NewLRUCache[string, int](2)
	cache.Set("a", 1)
	cache.Set("a", 10)

	if v, _ := cache.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	cache := NewLRUCache[string, int](2)
	cache.Set("a", 1)
	cache.Set("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	cache.Get("a")
	cache.Set("c", 3)

	if _, ok := cache.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected a to survive")
	}
	if cache.Evictions() != 1 {
		t.Errorf("Evictions() = %d, want 1", cache.Evictions())
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache := NewLRUCache[string, int](4)
	cache.Set("a", 1)
	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	hits, misses := cache.Stats()
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
	if misses != 2 {
		t.Errorf("misses = %d, want 2", misses)
	}
}

func TestLRUCache_ZeroCapacityDefaults(t *testing.T) {
	cache := NewLRUCache[string, int](0)
	for i := 0; i < 50; i++ {
		cache.Set(fmt.Sprintf("k%d", i), i)
	}
	if cache.Len() != 50 {
		t.Errorf("Len() = %d, want 50", cache.Len())
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := NewLRUCache[int, int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				cache.Set((seed*200+i)%128, i)
				cache.Get(i % 128)
			}
		}(g)
	}
	wg.Wait()

	if cache.Len() > 64 {
		t.Errorf("Len() = %d, exceeds capacity 64", cache.Len())
	}
}
