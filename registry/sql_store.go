package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect holds the statements that differ between database drivers.
type dialect struct {
	driver string
	save   string
	get    string
	list   string
	delete string
}

var postgres = dialect{
	driver: "postgres",
	save: `
		INSERT INTO decision_services (id, name, format, source, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET format = EXCLUDED.format, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`,
	get: `
		SELECT id, name, format, source, updated_at
		FROM decision_services
		WHERE name = $1`,
	list: `
		SELECT id, name, format, source, updated_at
		FROM decision_services
		ORDER BY name ASC`,
	delete: `DELETE FROM decision_services WHERE name = $1`,
}

var sqlite = dialect{
	driver: "sqlite",
	save: `
		INSERT INTO decision_services (id, name, format, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET format = excluded.format, source = excluded.source, updated_at = excluded.updated_at`,
	get: `
		SELECT id, name, format, source, updated_at
		FROM decision_services
		WHERE name = ?`,
	list: `
		SELECT id, name, format, source, updated_at
		FROM decision_services
		ORDER BY name ASC`,
	delete: `DELETE FROM decision_services WHERE name = ?`,
}

// sqliteSchema creates the table on first use. Postgres databases are set up
// by cmd/migrate instead.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decision_services (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	format     TEXT NOT NULL,
	source     BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLStore implements Store on a database/sql connection.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgresStore wraps an open PostgreSQL connection. The schema must
// already be migrated.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgres}
}

// NewSQLiteStore wraps an open SQLite connection and creates the schema if
// needed.
func NewSQLiteStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLStore{db: db, dialect: sqlite}, nil
}

// OpenStore opens the store named by a database URL: empty for memory,
// postgres:// or postgresql:// for PostgreSQL and sqlite://path for SQLite.
func OpenStore(databaseURL string) (Store, error) {
	switch {
	case databaseURL == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		db, err := sql.Open(postgres.driver, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return NewPostgresStore(db), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		db, err := sql.Open(sqlite.driver, strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// one connection keeps :memory: databases shared and writes serialized
		db.SetMaxOpenConns(1)
		store, err := NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

func (s *SQLStore) Save(record *Record) error {
	_, err := s.db.Exec(s.dialect.save,
		record.ID, record.Name, string(record.Format), record.Source, record.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save decision service: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(name string) (*Record, error) {
	r, err := scanRecord(s.db.QueryRow(s.dialect.get, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision service: %w", err)
	}
	return r, nil
}

func (s *SQLStore) List() ([]*Record, error) {
	rows, err := s.db.Query(s.dialect.list)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision services: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision service: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision services: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Delete(name string) error {
	result, err := s.db.Exec(s.dialect.delete, name)
	if err != nil {
		return fmt.Errorf("failed to delete decision service: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("record %s: %w", name, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) Ping() error { return s.db.Ping() }

func (s *SQLStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r      Record
		format string
		at     time.Time
	)
	if err := row.Scan(&r.ID, &r.Name, &format, &r.Source, &at); err != nil {
		return nil, err
	}
	r.Format = Format(format)
	r.UpdatedAt = at.UTC()
	return &r, nil
}
