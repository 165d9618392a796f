package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/cache"
	"github.com/Additional-Code/palate/internal/messaging"
	"github.com/Additional-Code/palate/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/palate/worker/order")

// Invalidator drops cached order snapshots.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		func(c *cache.Orders) Invalidator { return c },
		fx.Annotate(
			NewSnapshotHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewAuditHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewSnapshotHandler evicts the cached snapshot of any order another process
// changed, so readers fall back to the database.
func NewSnapshotHandler(snapshots Invalidator, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.invalidate", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		event, err := messaging.DecodeOrderEvent(msg)
		if err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.Int64("order.id", event.OrderID))

		if err := snapshots.Invalidate(ctx, event.OrderID); err != nil {
			logger.Warn("snapshot invalidation failed", zap.Int64("id", event.OrderID), zap.Error(err))
			span.RecordError(err)
			return err
		}
		return nil
	}

	return worker.HandlerRegistration{EventType: worker.AnyEvent, Handler: handler}
}

// NewAuditHandler writes one structured log line per order change.
func NewAuditHandler(logger *zap.Logger) worker.HandlerRegistration {
	audit := logger.Named("audit")
	handler := func(ctx context.Context, msg messaging.Message) error {
		event, err := messaging.DecodeOrderEvent(msg)
		if err != nil {
			return err
		}
		audit.Info("order changed",
			zap.String("event", event.Type),
			zap.Int64("id", event.OrderID),
			zap.Int64("order_number", event.OrderNumber),
			zap.String("status", event.Status),
			zap.Strings("fields", event.Fields),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}

	return worker.HandlerRegistration{EventType: worker.AnyEvent, Handler: handler}
}
