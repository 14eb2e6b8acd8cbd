// Package cmap provides a sharded map safe for concurrent use.
//
// Keys are spread across a power-of-two number of shards, each guarded by
// its own RWMutex, so unrelated keys rarely contend.
package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShardCount is used when no valid shard count is given.
const DefaultShardCount = 16

// Map is a concurrent sharded map.
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	seed   maphash.Seed
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New creates a map with DefaultShardCount shards.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards creates a map with n shards. n must be a power of two;
// anything else falls back to DefaultShardCount.
func NewWithShards[K comparable, V any](n int) *Map[K, V] {
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultShardCount
	}
	m := &Map[K, V]{
		shards: make([]*shard[K, V], n),
		mask:   uint64(n - 1),
		seed:   maphash.MakeSeed(),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[maphash.Comparable(m.seed, key)&m.mask]
}

// ShardCount returns the number of shards.
func (m *Map[K, V]) ShardCount() int {
	return len(m.shards)
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// GetOrSet stores value if key is absent. It returns the value now stored
// and whether it was already present.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok {
		return existing, true
	}
	s.items[key] = value
	return value, false
}

// Pop removes key and returns the value it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Count returns the number of entries. The result is not a snapshot when
// writers run concurrently.
func (m *Map[K, V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until fn returns false. Shards are locked
// one at a time; fn must not write to the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
}
