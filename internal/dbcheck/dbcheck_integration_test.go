//go:build integration

package dbcheck

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("coffee"),
		tcpostgres.WithUsername("coffee"),
		tcpostgres.WithPassword("coffee"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanup := func() {
		_ = pgContainer.Terminate(ctx)
	}
	return dsn, cleanup
}

func TestCheck_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dsn, cleanup := setupPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	info, err := Check(ctx, dsn)
	require.NoError(t, err)
	assert.Contains(t, info.ServerVersion, "16")
	assert.Equal(t, "coffee", info.Database)
	assert.Equal(t, "coffee", info.User)
	assert.False(t, info.OrdersTable)

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, `CREATE TABLE orders (id serial PRIMARY KEY, name text NOT NULL, status text NOT NULL)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO orders (name, status) VALUES ('ada', 'QUEUED'), ('grace', 'DONE')`)
	require.NoError(t, err)

	info, err = Check(ctx, dsn)
	require.NoError(t, err)
	assert.True(t, info.OrdersTable)
	assert.Equal(t, int64(2), info.Orders)
}
