package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, RemoteCountKey(1), []byte("42"), 0))

	v, err := s.Get(ctx, RemoteCountKey(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), v)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, RemoteCountKey(1))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, OrderKey(7), []byte("{}"), 0))
	require.NoError(t, s.Delete(ctx, OrderKey(7)))

	_, err := s.Get(ctx, OrderKey(7))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, s.Set(ctx, "", nil, 0))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "orders:15", OrderKey(15))
	assert.Equal(t, "orders:count:2", RemoteCountKey(2))
}

func TestNoopStoreAlwaysMisses(t *testing.T) {
	s := noopStore{}
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Second))

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
