// Package cache provides a small key/value store with expiry. Redis backs it
// in production; the in-memory store is used when Redis is unavailable and in
// tests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the subset of cache operations the services rely on.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Has(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Pull reads a key and removes it.
func Pull(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.Forget(ctx, key); err != nil {
		return "", err
	}
	return v, nil
}

// GetOr returns the cached value or def on a miss.
func GetOr(ctx context.Context, s Store, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}
