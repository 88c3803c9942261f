// Package pgtest provides helpers for tests that need a live PostgreSQL.
// Tests are skipped unless TEST_DATABASE holds a connection string.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// ConnString returns TEST_DATABASE or skips the test.
func ConnString(t testing.TB) string {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE")
	if connString == "" {
		t.Skip("TEST_DATABASE not set")
	}
	return connString
}

// ParseConfig returns a test connection config that logs server notices
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}

	return config
}

// Pool opens a pool on TEST_DATABASE and closes it when the test ends.
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, ConnString(t))
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	t.Cleanup(pool.Close)
	return pool
}

// DropTable removes a table created by a test.
func DropTable(t testing.TB, pool *pgxpool.Pool, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{name}.Sanitize())
	require.NoError(t, err)
}
