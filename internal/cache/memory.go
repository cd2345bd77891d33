package cache

import (
	"context"
	"time"

	pkgcache "github.com/agrostack/cosecha/pkg/cache"
)

// MemoryProvider adapts the in-process store to the Provider interface so
// workers keep full state behaviour without a Valkey deployment.
type MemoryProvider struct {
	store *pkgcache.MemoryStore
}

// NewMemoryProvider creates a Provider backed by process-local memory.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{store: pkgcache.NewMemoryStore()}
}

// Get retrieves bytes by key, returning ErrCacheMiss when absent.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := p.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

// Set stores bytes with the provided TTL.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.store.Set(key, value, ttl)
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.store.SetNX(key, value, ttl), nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.store.Delete(key)
	return nil
}

// PushCapped prepends to a bounded list.
func (p *MemoryProvider) PushCapped(_ context.Context, key string, value []byte, limit int) error {
	p.store.PushCapped(key, value, limit)
	return nil
}

// Range reads up to n entries from a list head.
func (p *MemoryProvider) Range(_ context.Context, key string, n int) ([][]byte, error) {
	return p.store.Range(key, n), nil
}

// Close is a no-op for the in-process provider.
func (p *MemoryProvider) Close() error { return nil }
