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

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenStore) IncrBy(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Hour))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Hour)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCounterRoundTrip(t *testing.T) {
	c := NewCounter(NewMemory())
	ctx := context.Background()

	assert.Equal(t, 0, c.GetInt(ctx, "ratelimit:newsdata:20240101", 0))
	c.SetInt(ctx, "ratelimit:newsdata:20240101", 7, time.Hour)
	assert.Equal(t, 7, c.GetInt(ctx, "ratelimit:newsdata:20240101", 0))
}

func TestCounterToleratesBrokenStore(t *testing.T) {
	c := NewCounter(brokenStore{})
	ctx := context.Background()

	assert.NotPanics(t, func() { c.SetInt(ctx, "k", 1, time.Minute) })
	assert.Equal(t, 42, c.GetInt(ctx, "k", 42))
}

func TestCounterIgnoresGarbage(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "not-a-number", 0))
	assert.Equal(t, 5, NewCounter(m).GetInt(ctx, "k", 5))
}

func TestMemoryIncrBy(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	n, err := m.IncrBy(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = m.IncrBy(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// the first expiry sticks
	now = now.Add(30 * time.Minute)
	n, err = m.IncrBy(ctx, "k", -1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	now = now.Add(time.Hour)
	n, err = m.IncrBy(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, m.Set(ctx, "garbage", "x", 0))
	_, err = m.IncrBy(ctx, "garbage", 1, 0)
	assert.Error(t, err)
}

func TestCounterReserveIsAtomic(t *testing.T) {
	c := NewCounter(NewMemory())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Reserve(ctx, "ratelimit:newsdata:20240101", 5, time.Hour); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	assert.Equal(t, 5, c.GetInt(ctx, "ratelimit:newsdata:20240101", 0))

	c.Release(ctx, "ratelimit:newsdata:20240101")
	n, ok := c.Reserve(ctx, "ratelimit:newsdata:20240101", 5, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, 5, n)
}

func TestCounterReserveDegradesOnBrokenStore(t *testing.T) {
	c := NewCounter(brokenStore{})
	_, ok := c.Reserve(context.Background(), "k", 1, time.Minute)
	assert.True(t, ok)
	assert.NotPanics(t, func() { c.Release(context.Background(), "k") })
}
