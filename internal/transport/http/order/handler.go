package order

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/dto"
	"github.com/Additional-Code/palate/internal/entity"
	"github.com/Additional-Code/palate/internal/presentation/http/response"
	repo "github.com/Additional-Code/palate/internal/repository/order"
	service "github.com/Additional-Code/palate/internal/service/order"
	"github.com/Additional-Code/palate/internal/transport/http/admin"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/palate/transport/http/order")

// Service is the order behaviour the handlers expose.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (service.CreateResult, error)
	Get(ctx context.Context, id int64) (entity.Order, error)
	List(ctx context.Context, limit int) ([]entity.Order, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Patch(ctx context.Context, id int64, fields repo.Fieldset) (entity.Order, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc         Service
	adminSecret string
}

// NewHandler constructs an order Handler.
func NewHandler(svc Service, cfg config.Config) *Handler {
	return &Handler{svc: svc, adminSecret: cfg.Admin.SharedSecret}
}

// Register routes with provided Echo instance. Creating an order is public;
// everything else needs the admin key.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)

	guard := admin.RequireKey(h.adminSecret)
	g.GET("", h.list, guard)
	g.GET("/:id", h.getByID, guard)
	g.PUT("/:id/status", h.setStatus, guard)
	g.PATCH("/:id", h.patch, guard)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	res, err := h.svc.Create(ctx, service.CreateInput{
		Order:      payload.Order(),
		PDFDataURL: payload.PDFDataURL,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.Int64("order.number", res.OrderNumber))

	return b.WithStatus(http.StatusCreated).
		WithData(dto.CreateOrderResponse{ID: res.ID, OrderNumber: res.OrderNumber}).
		WithWarnings(res.Warnings).
		Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return b.WithError(errorbank.BadRequest("invalid limit", errorbank.WithDetail("field", "limit"))).Build()
		}
		limit = n
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(orders).WithMeta("count", len(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(order).Build()
}

func (h *Handler) setStatus(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.StatusRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.setStatus", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.SetStatus(ctx, id, payload.Status); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.OKResponse{OK: true}).Build()
}

func (h *Handler) patch(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	fields, err := readFieldset(c.Request().Body)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.patch", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Patch(ctx, id, fields)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(order).Build()
}

// readFieldset accepts either {"patch": {...}} or the fieldset itself.
func readFieldset(body io.Reader) (repo.Fieldset, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errorbank.BadRequest("Missing id or patch")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}

	inner, ok := top["patch"]
	if !ok {
		return repo.Fieldset(top), nil
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '{' {
		return nil, errorbank.BadRequest("Missing id or patch")
	}
	var fields repo.Fieldset
	if err := json.Unmarshal(inner, &fields); err != nil {
		return nil, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	if fields == nil {
		fields = repo.Fieldset{}
	}
	return fields, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
