package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"

	"github.com/Additional-Code/palate/internal/database"
	"github.com/Additional-Code/palate/internal/entity"
)

// Module provides the account repository to Fx.
var Module = fx.Provide(NewRepository)

var repoTracer = otel.Tracer("github.com/Additional-Code/palate/repository/account")

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// Repository persists customer accounts in the users table.
type Repository struct {
	db *bun.DB
}

// NewRepository wires a repository on the writer connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{db: conns.Writer}
}

// NewWithDB builds a repository on an explicit handle.
func NewWithDB(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the account unless the email exists already.
func (r *Repository) Create(ctx context.Context, acc *entity.Account) error {
	ctx, span := repoTracer.Start(ctx, "AccountRepository.Create")
	defer span.End()

	err := r.db.NewInsert().
		Model(acc).
		ExcludeColumn("id", "created_at").
		On("CONFLICT (email) DO NOTHING").
		Returning("id, created_at").
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows), database.IsUniqueViolation(err):
		span.SetStatus(codes.Error, "email taken")
		return ErrEmailTaken
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return database.Unavailable("create account", err)
	case acc.ID == 0:
		return ErrEmailTaken
	}
	return nil
}

// GetByEmail looks an account up by its normalised email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (entity.Account, error) {
	ctx, span := repoTracer.Start(ctx, "AccountRepository.GetByEmail")
	defer span.End()

	var acc entity.Account
	err := r.db.NewSelect().Model(&acc).Where("email = ?", email).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Account{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return entity.Account{}, database.Unavailable("get account", err)
	}
	return acc, nil
}
