package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/palate/internal/database"
	"github.com/Additional-Code/palate/internal/entity"
)

// Module provides the order repository to Fx.
var Module = fx.Provide(NewRepository)

var repoTracer = otel.Tracer("github.com/Additional-Code/palate/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 300

// Repository is the only component that reads or writes order rows.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// NewWithDB builds a repository reading and writing through one handle.
func NewWithDB(db *bun.DB) *Repository {
	return &Repository{writer: db, reader: db}
}

// Create inserts the order and fills in its id, order number and creation
// time. The number comes from the column default in the same statement.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	if order.Status == "" {
		order.Status = entity.StatusNew
	}
	if order.Items == nil {
		order.Items = []entity.LineItem{}
	}

	_, err := r.writer.NewInsert().
		Model(order).
		ExcludeColumn("id", "order_number", "created_at").
		Returning("id, order_number, created_at").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return database.Unavailable("create order", err)
	}

	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.Int64("order.number", order.OrderNumber),
	)
	return nil
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := selectByID(ctx, r.reader, id)
	if err != nil {
		recordErr(span, err, "select failed")
		return entity.Order{}, err
	}
	return order, nil
}

// List returns up to limit orders, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]entity.Order, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	orders := make([]entity.Order, 0)
	err := r.reader.NewSelect().
		Model(&orders).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, database.Unavailable("list orders", err)
	}

	for i := range orders {
		normalize(&orders[i])
	}
	return orders, nil
}

// SetStatus replaces the status of one order and nothing else.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status", status),
	))
	defer span.End()

	if status == "" {
		return &ValidationError{Field: "status", Message: "status is required"}
	}

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return database.Unavailable("set order status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return database.Unavailable("set order status", err)
	}
	if affected == 0 {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// Patch validates the fieldset, applies it in one transaction and returns the
// resulting row. Writes against a missing id change nothing; the trailing
// read is what reports ErrNotFound.
func (r *Repository) Patch(ctx context.Context, id int64, fields Fieldset) (entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Patch", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	changes, err := fields.Validate()
	if err != nil {
		span.SetStatus(codes.Error, "invalid patch")
		return entity.Order{}, err
	}
	span.SetAttributes(
		attribute.Int("patch.assignments", len(changes.Assignments)),
		attribute.Bool("patch.items", changes.HasItems),
	)

	var out entity.Order
	err = r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if !changes.Empty() {
			if err := applyChanges(ctx, tx, id, changes); err != nil {
				return err
			}
		}
		order, err := selectByID(ctx, tx, id)
		if err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		recordErr(span, err, "patch failed")
		return entity.Order{}, err
	}
	return out, nil
}

func applyChanges(ctx context.Context, tx bun.Tx, id int64, changes Changes) error {
	q := tx.NewUpdate().
		Model((*entity.Order)(nil)).
		Where("id = ?", id)

	for _, a := range changes.Assignments {
		q = q.Set("? = ?", bun.Ident(a.Column), a.Value)
	}
	if changes.HasItems {
		payload, err := json.Marshal(changes.Items)
		if err != nil {
			return fmt.Errorf("encode items: %w", err)
		}
		q = q.Set("items = ?::jsonb", string(payload))
	}

	if _, err := q.Exec(ctx); err != nil {
		return database.Unavailable("patch order", err)
	}
	return nil
}

func selectByID(ctx context.Context, db bun.IDB, id int64) (entity.Order, error) {
	var order entity.Order
	err := db.NewSelect().Model(&order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Order{}, ErrNotFound
	}
	if err != nil {
		return entity.Order{}, database.Unavailable("select order", err)
	}
	normalize(&order)
	return order, nil
}

func normalize(order *entity.Order) {
	if order.Items == nil {
		order.Items = []entity.LineItem{}
	}
}

func recordErr(span trace.Span, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}
