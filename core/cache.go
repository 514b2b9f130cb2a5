package core

import (
	"sync"
	"time"
)

type (
	// CacheEntry is a previously fetched collection and when it was fetched.
	CacheEntry[T any] struct {
		Items     []T
		FetchedAt time.Time
	}

	// ListCache is a keyed in-memory store of fetched collections, used to
	// avoid redundant repository reads when admin views switch back and forth
	// between scopes (eg. school years). There is no TTL: entries live until
	// explicitly invalidated by a mutation. Concurrent loads of the same key
	// are not deduplicated; the later fetch wins, which is acceptable for
	// admin tooling.
	ListCache[K comparable, T any] struct {
		mu      sync.RWMutex
		entries map[K]CacheEntry[T]
		nowFunc func() time.Time
	}
)

func NewListCache[K comparable, T any]() *ListCache[K, T] {
	return &ListCache[K, T]{
		entries: make(map[K]CacheEntry[T]),
		nowFunc: time.Now,
	}
}

// Load returns the cached entry for key unless it is missing or forceRefresh
// is set, in which case fetch is called and its result cached.
func (c *ListCache[K, T]) Load(key K, forceRefresh bool, fetch func() ([]T, error)) (CacheEntry[T], error) {
	if !forceRefresh {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}
	}

	items, err := fetch()
	if err != nil {
		return CacheEntry[T]{}, err
	}
	entry := CacheEntry[T]{Items: items, FetchedAt: c.nowFunc()}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry, nil
}

// Invalidate removes the entry for key; the next Load fetches fresh data.
func (c *ListCache[K, T]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *ListCache[K, T]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[K]CacheEntry[T])
	c.mu.Unlock()
}
