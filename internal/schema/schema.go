// Package schema creates the order and account tables on demand so that a
// freshly provisioned database works without a migration step.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/config"
	"github.com/Additional-Code/palate/internal/database"
)

// Module provides the bootstrapper to Fx.
var Module = fx.Provide(New)

var tracer = otel.Tracer("github.com/Additional-Code/palate/schema")

// Advisory lock keys, one per statement set.
const (
	ordersLockKey   int64 = 0x70616c6f72 // "palor"
	accountsLockKey int64 = 0x70616c7573 // "palus"
)

// Bootstrapper ensures tables and sequences exist.
type Bootstrapper struct {
	db            *bun.DB
	sequenceStart int64
	logger        *zap.Logger
}

// New constructs a Bootstrapper on the writer connection.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) *Bootstrapper {
	return NewWithDB(conns.Writer, cfg.Orders.SequenceStart, logger)
}

// NewWithDB constructs a Bootstrapper on an explicit handle.
func NewWithDB(db *bun.DB, sequenceStart int64, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sequenceStart <= 0 {
		sequenceStart = 1600
	}
	return &Bootstrapper{db: db, sequenceStart: sequenceStart, logger: logger}
}

// OrderStatements returns the DDL that Ensure runs, in order.
func OrderStatements(sequenceStart int64) []string {
	return []string{
		fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS order_number_seq START %d", sequenceStart),
		`CREATE TABLE IF NOT EXISTS orders (
			id serial PRIMARY KEY,
			order_number integer NOT NULL DEFAULT nextval('order_number_seq'),
			created_at timestamptz DEFAULT now(),
			status text DEFAULT 'new',
			customer_name text,
			customer_email text,
			customer_phone text,
			customer_address text,
			shabbos_label text,
			allergies text,
			total text,
			items jsonb,
			email_body text,
			html_body text
		)`,
		// Re-bound on every call so a table created without the default heals.
		`ALTER TABLE orders ALTER COLUMN order_number SET DEFAULT nextval('order_number_seq')`,
		`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC)`,
	}
}

// OrderIndexStatements returns indexes that a legacy table may not satisfy.
// Ensure attempts them after OrderStatements and logs, rather than fails, when
// existing rows violate them.
func OrderIndexStatements() []string {
	return []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS orders_order_number_key ON orders (order_number)`,
	}
}

// AccountStatements returns the DDL that EnsureAccounts runs.
func AccountStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id serial PRIMARY KEY,
			email text UNIQUE NOT NULL,
			password_hash text NOT NULL,
			name text,
			phone text,
			address text,
			created_at timestamptz DEFAULT now()
		)`,
	}
}

// Ensure makes the order sequence and table exist. It is idempotent, safe to
// run from many processes at once and never advances the sequence.
func (b *Bootstrapper) Ensure(ctx context.Context) error {
	return b.apply(ctx, "orders", ordersLockKey, OrderStatements(b.sequenceStart), OrderIndexStatements()...)
}

// EnsureAccounts makes the users table exist.
func (b *Bootstrapper) EnsureAccounts(ctx context.Context) error {
	return b.apply(ctx, "accounts", accountsLockKey, AccountStatements())
}

func (b *Bootstrapper) apply(ctx context.Context, name string, lockKey int64, stmts []string, optional ...string) error {
	ctx, span := tracer.Start(ctx, "Bootstrapper."+name)
	defer span.End()

	err := b.run(ctx, lockKey, stmts, optional)
	if err != nil && database.IsDuplicateObject(err) {
		// Someone outside the advisory lock (a migration run, say) created the
		// object between our check and create. The second pass sees it.
		b.logger.Debug("schema race tolerated", zap.String("set", name), zap.Error(err))
		err = b.run(ctx, lockKey, stmts, optional)
		if database.IsDuplicateObject(err) {
			err = nil
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ensure failed")
		return database.Unavailable("ensure "+name+" schema", err)
	}
	return nil
}

func (b *Bootstrapper) run(ctx context.Context, lockKey int64, stmts, optional []string) error {
	return b.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", lockKey); err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		for _, stmt := range optional {
			if err := b.tryIndex(ctx, tx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// tryIndex runs stmt inside a savepoint. Duplicate rows in a legacy table
// leave the index missing and a warning in the log; the table stays usable.
func (b *Bootstrapper) tryIndex(ctx context.Context, tx bun.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT optional_index"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, stmt)
	if err == nil {
		_, err = tx.ExecContext(ctx, "RELEASE SAVEPOINT optional_index")
		return err
	}
	if !database.IsUniqueViolation(err) {
		return err
	}
	b.logger.Warn("index skipped, existing rows violate it",
		zap.String("statement", stmt),
		zap.Error(err),
	)
	_, err = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT optional_index")
	return err
}
