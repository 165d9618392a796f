package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/palate/internal/entity"
)

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNoopStore(t *testing.T) {
	_, err := noopStore{}.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, noopStore{}.Set(context.Background(), "k", nil, 0))
}

func TestOrders_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewOrdersWithStore(store, time.Minute)

	_, err := orders.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrCacheMiss)

	in := entity.Order{
		ID:          5,
		OrderNumber: 1604,
		Status:      "new",
		Items:       []entity.LineItem{map[string]any{"name": "Challah", "qty": float64(2)}},
		CreatedAt:   time.Date(2024, 10, 4, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, orders.Put(ctx, in))

	got, err := orders.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, in.OrderNumber, got.OrderNumber)
	assert.Equal(t, in.Items, got.Items)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, orders.Invalidate(ctx, 5))
	_, err = orders.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestOrders_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, OrderKey(9), []byte("{not json"), 0))

	_, err := NewOrdersWithStore(store, 0).Get(ctx, 9)
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = store.Get(ctx, OrderKey(9))
	assert.ErrorIs(t, err, ErrCacheMiss)
}
