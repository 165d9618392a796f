package seeder

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/entity"
	repo "github.com/Additional-Code/palate/internal/repository/order"
	"github.com/Additional-Code/palate/internal/schema"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(
	func(r *repo.Repository) Store { return r },
	func(b *schema.Bootstrapper) Bootstrapper { return b },
	New,
)

// Store is the slice of the order repository the seeder needs.
type Store interface {
	Create(ctx context.Context, order *entity.Order) error
	List(ctx context.Context, limit int) ([]entity.Order, error)
}

// Bootstrapper creates the order table when it is missing.
type Bootstrapper interface {
	Ensure(ctx context.Context) error
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	store  Store
	schema Bootstrapper
	logger *zap.Logger
}

// New constructs a Seeder.
func New(store Store, schema Bootstrapper, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, schema: schema, logger: logger}
}

// SampleOrders returns the demo orders inserted by Orders.
func SampleOrders() []entity.Order {
	return []entity.Order{
		{
			CustomerName:    "Rivka Levin",
			CustomerEmail:   "rivka@example.com",
			CustomerPhone:   "555-0101",
			CustomerAddress: "12 Maple Ave",
			ShabbosLabel:    "Parshas Noach",
			Total:           "$184.00",
			Items: []entity.LineItem{
				map[string]any{"name": "Challah", "qty": 2, "price": "8.00"},
				map[string]any{"name": "Chicken soup", "qty": 1, "size": "quart", "price": "18.00"},
				map[string]any{"name": "Potato kugel", "qty": 1, "size": "9x13", "price": "42.00"},
			},
		},
		{
			CustomerName:  "Dovid Katz",
			CustomerPhone: "555-0144",
			ShabbosLabel:  "Parshas Noach",
			Allergies:     "sesame",
			Total:         "$96.00",
			Items: []entity.LineItem{
				map[string]any{"name": "Brisket", "qty": 1, "unit": "lb", "price": "38.00"},
				map[string]any{"name": "Cholent", "qty": 1, "size": "quart", "price": "22.00"},
			},
		},
	}
}

// Orders inserts the sample orders into an empty table. A table that already
// holds orders is left alone.
func (s *Seeder) Orders(ctx context.Context) error {
	if err := s.schema.Ensure(ctx); err != nil {
		return err
	}

	existing, err := s.store.List(ctx, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if s.logger != nil {
			s.logger.Info("orders already present; skipping seed")
		}
		return nil
	}

	samples := SampleOrders()
	for i := range samples {
		if err := s.store.Create(ctx, &samples[i]); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	}
	return nil
}
