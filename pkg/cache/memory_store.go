package cache

import (
	"sync"
	"time"
)

// MemoryStore is a lightweight in-process stand-in for Valkey used by tests
// and single-node deployments. It mirrors the key and capped-list operations
// the workers rely on.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]item
	lists map[string][][]byte
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]item),
		lists: make(map[string][][]byte),
	}
}

// Get retrieves a value if present and not expired.
func (c *MemoryStore) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return it.value, true
}

// Set stores a value with optional TTL.
func (c *MemoryStore) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = item{value: value, expiresAt: expiry(ttl)}
}

// SetNX stores the value only if the key is absent or expired, reporting
// whether the write happened.
func (c *MemoryStore) SetNX(key string, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if ok && (it.expiresAt.IsZero() || time.Now().Before(it.expiresAt)) {
		return false
	}
	c.data[key] = item{value: value, expiresAt: expiry(ttl)}
	return true
}

// Delete removes an entry and any list under the same key.
func (c *MemoryStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.lists, key)
}

// PushCapped prepends value to the list at key, trimming to limit entries.
func (c *MemoryStore) PushCapped(key string, value []byte, limit int) {
	if limit <= 0 {
		limit = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := append([][]byte{value}, c.lists[key]...)
	if len(list) > limit {
		list = list[:limit]
	}
	c.lists[key] = list
}

// Range returns up to n entries from the head of the list, newest first.
func (c *MemoryStore) Range(key string, n int) [][]byte {
	if n <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.lists[key]
	if len(list) > n {
		list = list[:n]
	}
	out := make([][]byte, len(list))
	copy(out, list)
	return out
}

func expiry(ttl time.Duration) time.Time {
	if ttl > 0 {
		return time.Now().Add(ttl)
	}
	return time.Time{}
}
