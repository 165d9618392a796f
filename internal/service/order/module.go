package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/palate/internal/cache"
	"github.com/Additional-Code/palate/internal/notification"
	repo "github.com/Additional-Code/palate/internal/repository/order"
	"github.com/Additional-Code/palate/internal/schema"
)

// Module provides the order service to Fx.
var Module = fx.Provide(
	NewService,
	func(r *repo.Repository) Store { return r },
	func(b *schema.Bootstrapper) Bootstrapper { return b },
	func(d *notification.Dispatcher) Notifier { return d },
	func(o *cache.Orders) SnapshotCache { return o },
)
