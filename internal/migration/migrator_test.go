package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/palate/internal/database/dbtest"
	"github.com/Additional-Code/palate/internal/migration"
	"github.com/Additional-Code/palate/internal/schema"
)

func TestMigrator_UpDown(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	m := migration.NewWithDB(db, zap.NewNop())

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx))

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	var next int64
	require.NoError(t, db.QueryRowContext(ctx, "SELECT nextval('order_number_seq')").Scan(&next))
	assert.Equal(t, int64(1600), next)

	require.NoError(t, m.Down(ctx, 1, false))
	var usersTable *string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT to_regclass('users')::text").Scan(&usersTable))
	assert.Nil(t, usersTable)

	require.NoError(t, m.Down(ctx, 0, true))
	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestMigrator_CoexistsWithBootstrap(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, schema.NewWithDB(db, 1600, nil).Ensure(ctx))
	require.NoError(t, migration.NewWithDB(db, nil).Up(ctx))
	require.NoError(t, schema.NewWithDB(db, 1600, nil).Ensure(ctx))
}
