// Package storagetest provides migrated databases for store tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"clubhouse/internal/adapters/storage"
)

// SQLite returns a temp-file SQLite database with all migrations applied.
func SQLite(t *testing.T) *sql.DB {
	t.Helper()
	path := t.TempDir() + "/clubhouse_test.db"
	require.NoError(t, storage.MigrateSQLite(path))
	db, err := storage.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Postgres starts a disposable PostgreSQL container and returns a migrated pool.
// The test is skipped under -short or when no container runtime is available.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clubhouse_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{"test": "clubhouse-storage", "test-name": t.Name()}),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, storage.MigratePostgres(url))

	pool, err := storage.OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}
