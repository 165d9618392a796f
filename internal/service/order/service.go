package order

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/cache"
	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/entity"
	"github.com/Additional-Code/palate/internal/messaging"
	"github.com/Additional-Code/palate/internal/notification"
	"github.com/Additional-Code/palate/internal/observability"
	repo "github.com/Additional-Code/palate/internal/repository/order"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/palate/service/order")

// Store is the order persistence the service drives.
type Store interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (entity.Order, error)
	List(ctx context.Context, limit int) ([]entity.Order, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Patch(ctx context.Context, id int64, fields repo.Fieldset) (entity.Order, error)
}

// Bootstrapper ensures the order schema exists.
type Bootstrapper interface {
	Ensure(ctx context.Context) error
}

// Notifier announces new orders.
type Notifier interface {
	Dispatch(ctx context.Context, n notification.Notification) error
}

// SnapshotCache holds recently read orders.
type SnapshotCache interface {
	Get(ctx context.Context, id int64) (entity.Order, error)
	Put(ctx context.Context, order entity.Order) error
	Invalidate(ctx context.Context, id int64) error
}

// CreateInput is a new order plus its optional PDF rendering.
type CreateInput struct {
	Order      *entity.Order
	PDFDataURL string
}

// CreateResult reports the assigned identifiers and any soft failures.
type CreateResult struct {
	ID          int64
	OrderNumber int64
	Warnings    []string
}

// Service orchestrates schema bootstrap, storage and side effects for orders.
type Service struct {
	store      Store
	schema     Bootstrapper
	notifier   Notifier
	cache      SnapshotCache
	publisher  messaging.Client
	metrics    *observability.OrderMetrics
	logger     *zap.Logger
	listLimit  int
	ensureOnce bool
	ensured    atomic.Bool
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Schema    Bootstrapper
	Notifier  Notifier
	Cache     SnapshotCache
	Publisher messaging.Client
	Metrics   *observability.OrderMetrics `optional:"true"`
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := p.Config.Orders.ListLimit
	if limit <= 0 {
		limit = repo.DefaultListLimit
	}
	return &Service{
		store:      p.Store,
		schema:     p.Schema,
		notifier:   p.Notifier,
		cache:      p.Cache,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
		logger:     logger,
		listLimit:  limit,
		ensureOnce: p.Config.Orders.EnsureSchema == config.EnsureOnce,
	}
}

// Create persists the order, then emails staff and customer. Email problems
// come back as warnings; the order stays created.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.Order == nil {
		return CreateResult{}, errorbank.BadRequest("order payload is required")
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create")
	defer span.End()

	if err := s.ensure(ctx); err != nil {
		return CreateResult{}, err
	}

	order := in.Order
	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.logger.Error("create order", zap.Error(err))
		return CreateResult{}, errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int64("order.number", order.OrderNumber))
	s.metrics.Created(ctx)
	s.logger.Info("order created", zap.Int64("order_id", order.ID), zap.Int64("order_number", order.OrderNumber))

	s.publish(ctx, messaging.OrderEvent{
		Type:        messaging.OrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	})

	result := CreateResult{ID: order.ID, OrderNumber: order.OrderNumber}

	pdf, err := notification.DecodePDF(in.PDFDataURL)
	if err != nil {
		s.logger.Warn("order attachment dropped", zap.Int64("order_id", order.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, err.Error())
	}

	err = s.notifier.Dispatch(ctx, notification.Notification{
		Order: *order,
		Text:  order.EmailBody,
		HTML:  order.HTMLBody,
		PDF:   pdf,
	})
	switch {
	case err == nil:
	case errors.Is(err, notification.ErrNotConfigured):
		result.Warnings = append(result.Warnings, err.Error())
	default:
		failures := multierr.Errors(err)
		s.metrics.NotificationFailed(ctx, len(failures))
		for _, f := range failures {
			result.Warnings = append(result.Warnings, f.Error())
		}
	}

	return result, nil
}

// Get retrieves an order by id, consulting the cache first.
func (s *Service) Get(ctx context.Context, id int64) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.cache.Get(ctx, id)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("order_id", id), zap.Error(err))
	}

	if err := s.ensure(ctx); err != nil {
		return entity.Order{}, err
	}

	order, err = s.store.GetByID(ctx, id)
	if err != nil {
		return entity.Order{}, s.storeError(span, "load order", err)
	}

	if err := s.cache.Put(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("order_id", id), zap.Error(err))
	}
	return order, nil
}

// List returns the newest orders first. A non-positive limit uses the
// configured default.
func (s *Service) List(ctx context.Context, limit int) ([]entity.Order, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.List", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	orders, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, s.storeError(span, "list orders", err)
	}
	return orders, nil
}

// SetStatus replaces an order's status.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SetStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if strings.TrimSpace(status) == "" {
		return errorbank.BadRequest("Missing id or status", errorbank.WithDetail("field", "status"))
	}

	if err := s.ensure(ctx); err != nil {
		return err
	}

	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return s.storeError(span, "set order status", err)
	}

	s.metrics.StatusUpdated(ctx, status)
	s.invalidate(ctx, id)
	s.publish(ctx, messaging.OrderEvent{Type: messaging.OrderStatusChanged, OrderID: id, Status: status})
	return nil
}

// Patch applies a sparse update and returns the resulting order.
func (s *Service) Patch(ctx context.Context, id int64, fields repo.Fieldset) (entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Patch", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.ensure(ctx); err != nil {
		return entity.Order{}, err
	}

	order, err := s.store.Patch(ctx, id, fields)
	if err != nil {
		return entity.Order{}, s.storeError(span, "patch order", err)
	}

	s.metrics.Patched(ctx)
	// The returned row may already be older than a concurrent patch that
	// committed after it, so the next read reloads instead.
	s.invalidate(ctx, id)
	s.publish(ctx, messaging.OrderEvent{
		Type:        messaging.OrderPatched,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Fields:      patchedFields(fields),
	})
	return order, nil
}

func (s *Service) ensure(ctx context.Context) error {
	if s.ensureOnce && s.ensured.Load() {
		return nil
	}
	if err := s.schema.Ensure(ctx); err != nil {
		s.logger.Error("ensure order schema", zap.Error(err))
		return errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}
	s.ensured.Store(true)
	return nil
}

func (s *Service) storeError(span trace.Span, op string, err error) error {
	var vErr *repo.ValidationError
	switch {
	case errors.As(err, &vErr):
		return errorbank.BadRequest(vErr.Message, errorbank.WithDetail("field", vErr.Field))
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("Order not found")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.logger.Error(op, zap.Error(err))
		return errorbank.Unavailable("Server Error", errorbank.WithCause(err))
	}
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("orders cache invalidate failed", zap.Int64("order_id", id), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event messaging.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := messaging.PublishOrderEvent(ctx, s.publisher, event); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.Int64("order_id", event.OrderID), zap.Error(err))
	}
}

func patchedFields(fields repo.Fieldset) []string {
	var out []string
	for _, f := range repo.StringFields {
		if _, ok := fields[f]; ok {
			out = append(out, f)
		}
	}
	if _, ok := fields[repo.ItemsField]; ok {
		out = append(out, repo.ItemsField)
	}
	return out
}
