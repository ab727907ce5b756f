// Package maps implements the fixed-contract string-keyed and long-keyed
// maps with eviction callbacks, backed by hashicorp/golang-lru's
// OnEvict-capable cache implementation rather than a hand-rolled map+mutex
// (see DESIGN.md). framework.Framework keeps its install-location ->
// bundle-id index in a StringHashMap.
package maps

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// EvictCallback is invoked, outside of any internal lock, when a key is
// removed — by explicit Remove or by capacity eviction. A Put that
// overwrites an existing key replaces its value without invoking it.
type EvictCallback[K comparable, V any] func(key K, value V)

// StringHashMap is a string-keyed map with a bounded capacity (<= 0 = a
// bound of 1<<20 entries) and an eviction callback.
type StringHashMap[V any] struct {
	cache    *lru.Cache[string, V]
	onEvict  EvictCallback[string, V]
	capacity int
}

// NewStringHashMap creates a map. capacity <= 0 means "effectively
// unbounded" (a very large internal capacity); onEvict may be nil.
func NewStringHashMap[V any](capacity int, onEvict EvictCallback[string, V]) *StringHashMap[V] {
	m := &StringHashMap[V]{onEvict: onEvict, capacity: capacity}
	size := capacity
	if size <= 0 {
		size = 1 << 20
	}
	c, err := lru.NewWithEvict[string, V](size, func(key string, value V) {
		if m.onEvict != nil {
			m.onEvict(key, value)
		}
	})
	if err != nil {
		// Only returns an error for size <= 0, which NewWithEvict never
		// receives here given the size normalization above.
		panic(err)
	}
	m.cache = c
	return m
}

func (m *StringHashMap[V]) Put(key string, value V) { m.cache.Add(key, value) }

func (m *StringHashMap[V]) Get(key string) (V, bool) { return m.cache.Get(key) }

func (m *StringHashMap[V]) Remove(key string) {
	m.cache.Remove(key)
}

func (m *StringHashMap[V]) Len() int { return m.cache.Len() }

func (m *StringHashMap[V]) Keys() []string { return m.cache.Keys() }

// LongHashMap is the int64-keyed counterpart of StringHashMap.
type LongHashMap[V any] struct {
	cache   *lru.Cache[int64, V]
	onEvict EvictCallback[int64, V]
}

func NewLongHashMap[V any](capacity int, onEvict EvictCallback[int64, V]) *LongHashMap[V] {
	m := &LongHashMap[V]{onEvict: onEvict}
	size := capacity
	if size <= 0 {
		size = 1 << 20
	}
	c, err := lru.NewWithEvict[int64, V](size, func(key int64, value V) {
		if m.onEvict != nil {
			m.onEvict(key, value)
		}
	})
	if err != nil {
		panic(err)
	}
	m.cache = c
	return m
}

func (m *LongHashMap[V]) Put(key int64, value V) { m.cache.Add(key, value) }

func (m *LongHashMap[V]) Get(key int64) (V, bool) { return m.cache.Get(key) }

func (m *LongHashMap[V]) Remove(key int64) { m.cache.Remove(key) }

func (m *LongHashMap[V]) Len() int { return m.cache.Len() }

func (m *LongHashMap[V]) Keys() []int64 { return m.cache.Keys() }
