package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
)

// MetricsModule provides the order counters.
var MetricsModule = fx.Provide(func(m *Manager) (*OrderMetrics, error) {
	return NewOrderMetrics(m.Meter("github.com/Additional-Code/palate/orders"))
})

// OrderMetrics counts order lifecycle events.
type OrderMetrics struct {
	created              metric.Int64Counter
	patched              metric.Int64Counter
	statusUpdates        metric.Int64Counter
	notificationFailures metric.Int64Counter
}

// NewOrderMetrics registers the counters on meter.
func NewOrderMetrics(meter metric.Meter) (*OrderMetrics, error) {
	var (
		m   OrderMetrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted")); err != nil {
		return nil, err
	}
	if m.patched, err = meter.Int64Counter("orders.patched",
		metric.WithDescription("Patch requests applied")); err != nil {
		return nil, err
	}
	if m.statusUpdates, err = meter.Int64Counter("orders.status_updates",
		metric.WithDescription("Status changes applied")); err != nil {
		return nil, err
	}
	if m.notificationFailures, err = meter.Int64Counter("orders.notification_failures",
		metric.WithDescription("Order emails that failed to send")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *OrderMetrics) Created(ctx context.Context) {
	if m != nil {
		m.created.Add(ctx, 1)
	}
}

func (m *OrderMetrics) Patched(ctx context.Context) {
	if m != nil {
		m.patched.Add(ctx, 1)
	}
}

func (m *OrderMetrics) StatusUpdated(ctx context.Context, status string) {
	if m != nil {
		m.statusUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// NotificationFailed records n failed sends.
func (m *OrderMetrics) NotificationFailed(ctx context.Context, n int) {
	if m != nil && n > 0 {
		m.notificationFailures.Add(ctx, int64(n))
	}
}
