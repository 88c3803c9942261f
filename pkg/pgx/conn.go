package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool used by the
// record store. Tests pass a single connection, the service passes a pool.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Begin starts a transaction. Unlike database/sql, the context only affects the begin command.
	Begin(ctx context.Context) (pgx.Tx, error)
}
