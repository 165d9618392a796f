package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
)

// Orders caches order snapshots by id on top of a Store.
type Orders struct {
	store Store
	ttl   time.Duration
}

// NewOrders wraps the configured store.
func NewOrders(store Store, cfg config.Config) *Orders {
	return NewOrdersWithStore(store, cfg.Cache.DefaultTTL)
}

// NewOrdersWithStore wraps an explicit store.
func NewOrdersWithStore(store Store, ttl time.Duration) *Orders {
	return &Orders{store: store, ttl: ttl}
}

// OrderKey is the cache key for an order snapshot.
func OrderKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

// Get returns the cached snapshot or ErrCacheMiss.
func (o *Orders) Get(ctx context.Context, id int64) (entity.Order, error) {
	raw, err := o.store.Get(ctx, OrderKey(id))
	if err != nil {
		return entity.Order{}, err
	}
	var order entity.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		_ = o.store.Delete(ctx, OrderKey(id))
		return entity.Order{}, ErrCacheMiss
	}
	return order, nil
}

// Put stores a snapshot.
func (o *Orders) Put(ctx context.Context, order entity.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return o.store.Set(ctx, OrderKey(order.ID), raw, o.ttl)
}

// Invalidate drops a snapshot.
func (o *Orders) Invalidate(ctx context.Context, id int64) error {
	return o.store.Delete(ctx, OrderKey(id))
}
