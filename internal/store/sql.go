package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver "sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// SQLConfig holds database configuration
type SQLConfig struct {
	// Driver is sqlite3, pgx or postgres
	Driver string
	// DSN is the driver's data source name
	DSN string
	// Table holds the documents
	Table string
}

// DefaultSQLConfig stores into a local SQLite file
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver: DriverSQLite,
		DSN:    "file:templater.db?cache=shared",
		Table:  "templater_entities",
	}
}

// SQLBackend stores documents in one table keyed by (kind, name).
type SQLBackend struct {
	db       *sql.DB
	table    string
	postgres bool
}

// OpenSQLBackend opens the database and creates the table when missing.
func OpenSQLBackend(ctx context.Context, config SQLConfig) (*SQLBackend, error) {
	switch config.Driver {
	case DriverSQLite, DriverPgx, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", config.Driver)
	}
	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	b := NewSQLBackend(db, config.Driver, config.Table)
	if err := b.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLBackend wraps an open database.
func NewSQLBackend(db *sql.DB, driver, table string) *SQLBackend {
	if table == "" {
		table = DefaultSQLConfig().Table
	}
	return &SQLBackend{
		db:       db,
		table:    pq.QuoteIdentifier(table),
		postgres: driver == DriverPgx || driver == DriverPostgres,
	}
}

// bind rewrites ? placeholders to $n for PostgreSQL drivers.
func (b *SQLBackend) bind(query string) string {
	if !b.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Migrate creates the documents table.
func (b *SQLBackend) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  data TEXT NOT NULL,
  PRIMARY KEY (kind, name)
)`, b.table)
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", b.table, err)
	}
	return nil
}

// Get selects one document.
func (b *SQLBackend) Get(ctx context.Context, kind Kind, name string) ([]byte, error) {
	var data string
	query := b.bind(fmt.Sprintf("SELECT data FROM %s WHERE kind = ? AND name = ?", b.table))
	err := b.db.QueryRowContext(ctx, query, string(kind), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(kind, name)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// Put upserts a document.
func (b *SQLBackend) Put(ctx context.Context, kind Kind, name string, data []byte) error {
	if err := ValidateName(kind, name); err != nil {
		return err
	}
	query := b.bind(fmt.Sprintf(
		"INSERT INTO %s (kind, name, data) VALUES (?, ?, ?) ON CONFLICT (kind, name) DO UPDATE SET data = excluded.data",
		b.table))
	_, err := b.db.ExecContext(ctx, query, string(kind), name, string(data))
	return err
}

// Delete removes a document.
func (b *SQLBackend) Delete(ctx context.Context, kind Kind, name string) error {
	query := b.bind(fmt.Sprintf("DELETE FROM %s WHERE kind = ? AND name = ?", b.table))
	res, err := b.db.ExecContext(ctx, query, string(kind), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, name)
	}
	return nil
}

// List selects the names of a kind.
func (b *SQLBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	query := b.bind(fmt.Sprintf("SELECT name FROM %s WHERE kind = ? ORDER BY name", b.table))
	rows, err := b.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Exists counts matching rows.
func (b *SQLBackend) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	var count int
	query := b.bind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE kind = ? AND name = ?", b.table))
	if err := b.db.QueryRowContext(ctx, query, string(kind), name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the database.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}
