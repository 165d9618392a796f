package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestOrderMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewOrderMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.Created(ctx)
	m.Created(ctx)
	m.Patched(ctx)
	m.StatusUpdated(ctx, "ready")
	m.NotificationFailed(ctx, 2)
	m.NotificationFailed(ctx, 0)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["orders.created"])
	assert.Equal(t, int64(1), sums["orders.patched"])
	assert.Equal(t, int64(1), sums["orders.status_updates"])
	assert.Equal(t, int64(2), sums["orders.notification_failures"])
}

func TestOrderMetrics_NilSafe(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.Created(context.Background())
		m.NotificationFailed(context.Background(), 1)
	})
}
