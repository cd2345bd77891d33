package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the shared-state operations the workers need: plain keys
// for latest-value handoff, SetNX for dedup, and a capped list for recent
// anomaly history.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	PushCapped(ctx context.Context, key string, value []byte, limit int) error
	Range(ctx context.Context, key string, n int) ([][]byte, error)
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// SetNX pretends to store the value and reports success.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// PushCapped discards the value and returns nil.
func (NoopProvider) PushCapped(context.Context, string, []byte, int) error { return nil }

// Range always returns an empty history.
func (NoopProvider) Range(context.Context, string, int) ([][]byte, error) { return nil, nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
