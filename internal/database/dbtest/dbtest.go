// Package dbtest opens throwaway Postgres schemas for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// EnvDSN names the variable holding the test database DSN.
const EnvDSN = "TEST_DATABASE_DSN"

var seq atomic.Int64

// Open returns a handle whose search_path points at a fresh schema. The schema
// is dropped when the test ends. Tests are skipped when no DSN is configured.
func Open(t testing.TB) *bun.DB {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}

	name := fmt.Sprintf("palate_test_%d_%d", time.Now().UnixNano(), seq.Add(1))

	admin := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := admin.ExecContext(ctx, "CREATE SCHEMA "+name)
	require.NoError(t, err)

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithConnParams(map[string]interface{}{"search_path": name}),
	)), pgdialect.New())

	t.Cleanup(func() {
		_ = db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.ExecContext(ctx, "DROP SCHEMA "+name+" CASCADE")
		_ = admin.Close()
	})

	return db
}
