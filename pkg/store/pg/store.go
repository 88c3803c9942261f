// Package pg is a PostgreSQL store.RecordStore.
//
// Records live in a single table with a unique index on code, so a duplicate
// insert racing past the engine's own serialization surfaces as
// store.ErrDuplicateKey instead of a second row.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/catalogd/pkg/catalog"
	pg "github.com/edgeflare/catalogd/pkg/pgx"
	"github.com/edgeflare/catalogd/pkg/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "catalog_records"

const uniqueViolation = "23505"

const columns = "id, code, wine_name, vintage, type, country, price"

type Config struct {
	Schema string `mapstructure:"schema"`
	Table  string `mapstructure:"table"`
}

type Store struct {
	conn  pg.Conn
	table string
}

// New returns a Store on conn. conn is usually a *pgxpool.Pool.
func New(conn pg.Conn, cfg Config) *Store {
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		conn:  conn,
		table: pgx.Identifier{schema, table}.Sanitize(),
	}
}

// Migrate creates the records table and its unique code index if missing.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	code integer NOT NULL UNIQUE,
	wine_name text NOT NULL DEFAULT '',
	vintage integer NOT NULL DEFAULT 0,
	type text NOT NULL DEFAULT '',
	country text NOT NULL DEFAULT '',
	price double precision NOT NULL DEFAULT 0
)`, s.table)

	if _, err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) FindByKey(ctx context.Context, code int) (*store.Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE code = $1 LIMIT 1", columns, s.table)

	e, err := scanEntry(s.conn.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record %d: %w", code, err)
	}
	return e, nil
}

func (s *Store) Insert(ctx context.Context, rec catalog.Record) (*store.Entry, error) {
	id := uuid.New()
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		s.table, columns,
	)

	_, err := s.conn.Exec(ctx, query,
		pgtype.UUID{Bytes: id, Valid: true},
		rec.Code, rec.Name, rec.Vintage, rec.Type, rec.Country, rec.Price,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("failed to insert record %d: %w", rec.Code, store.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("failed to insert record %d: %w", rec.Code, err)
	}
	return store.Bind(id, rec), nil
}

func (s *Store) Update(ctx context.Context, e *store.Entry) error {
	if !e.Bound() {
		return store.ErrUnbound
	}

	query := fmt.Sprintf(
		"UPDATE %s SET wine_name = $2, vintage = $3, type = $4, country = $5, price = $6 WHERE id = $1",
		s.table,
	)

	tag, err := s.conn.Exec(ctx, query,
		pgtype.UUID{Bytes: e.Identity(), Valid: true},
		e.Name, e.Vintage, e.Type, e.Country, e.Price,
	)
	if err != nil {
		return fmt.Errorf("failed to update record %d: %w", e.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update record %d: %w", e.Code, catalog.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteByKey(ctx context.Context, code int) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE code = $1", s.table)

	tag, err := s.conn.Exec(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete record %d: %w", code, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]catalog.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY code", columns, s.table)

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []catalog.Record{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, e.Record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func scanEntry(row pgx.Row) (*store.Entry, error) {
	var (
		id  pgtype.UUID
		rec catalog.Record
	)
	if err := row.Scan(&id, &rec.Code, &rec.Name, &rec.Vintage, &rec.Type, &rec.Country, &rec.Price); err != nil {
		return nil, err
	}
	return store.Bind(uuid.UUID(id.Bytes), rec), nil
}

var _ store.RecordStore = (*Store)(nil)
