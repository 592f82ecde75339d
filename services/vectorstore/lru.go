// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRUCache is a thread-safe fixed-size cache with least-recently-used
// eviction.
//
// Description:
//
//	Backs the embedding memoization layer. Eviction policy is explicit
//	LRU with a configured capacity; container/list gives O(1) access
//	and eviction.
//
// Thread Safety: All methods are safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	// Stats (atomic for lock-free reads)
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// lruEntry holds the key-value pair in the list.
type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache creates an LRU cache with the given capacity. A
// non-positive capacity falls back to 100.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*lruEntry[K, V]).value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set adds or updates a value, evicting the least recently used entry
// when the cache is full.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*lruEntry[K, V]).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	entry := &lruEntry[K, V]{key: key, value: value}
	elem := c.order.PushFront(entry)
	c.items[key] = elem
}

// Len returns the number of cached entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Stats returns hit/miss counters since creation.
func (c *LRUCache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Evictions returns the number of capacity evictions since creation.
// A high count relative to capacity means the cache is too small.
func (c *LRUCache[K, V]) Evictions() int64 {
	return c.evictions.Load()
}

// evictOldest removes the least recently used entry.
// Caller must hold the write lock.
func (c *LRUCache[K, V]) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.order.Remove(elem)
		entry := elem.Value.(*lruEntry[K, V])
		delete(c.items, entry.key)
		c.evictions.Add(1)
	}
}
