package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore(time.Hour)
	t.Cleanup(m.Close)
	return m
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)

	require.NoError(t, m.Put(ctx, "k", "v", 30*time.Millisecond))
	require.NoError(t, m.Put(ctx, "forever", "v", 0))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.Eventually(t, func() bool {
		_, err := m.Get(ctx, "k")
		return errors.Is(err, ErrMiss)
	}, time.Second, 5*time.Millisecond)

	has, err := m.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)
	has, _ = m.Has(ctx, "forever")
	assert.True(t, has, "zero ttl never expires")

	m.items.DeleteExpired()
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)

	ok, err := m.SetNX(ctx, "lock", "a", 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "a", GetOr(ctx, m, "lock", ""))

	require.Eventually(t, func() bool {
		ok, _ := m.SetNX(ctx, "lock", "c", time.Minute)
		return ok
	}, time.Second, 5*time.Millisecond, "expired lock can be claimed again")
	assert.Equal(t, "c", GetOr(ctx, m, "lock", ""))
}

func TestMemoryStoreSetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Hour)
	defer m.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.SetNX(ctx, "once", "x", time.Minute); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPull(t *testing.T) {
	ctx := context.Background()
	m := newTestStore(t)

	require.NoError(t, m.Put(ctx, "last_rfid_scan", "04AB", time.Minute))
	v, err := Pull(ctx, m, "last_rfid_scan")
	require.NoError(t, err)
	assert.Equal(t, "04AB", v)

	_, err = Pull(ctx, m, "last_rfid_scan")
	assert.ErrorIs(t, err, ErrMiss)
}
