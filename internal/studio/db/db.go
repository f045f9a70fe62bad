// Package db implements the persistence service for projects and their file
// records.
//
// The same schema runs on three backends:
//   - sqlite: embedded database file (ncruces/go-sqlite3, the default)
//   - postgres: a shared server reached through lib/pq
//   - libsql: Turso/libSQL URLs, available in cgo builds
//
// Every call is scoped to an owner id. Rows that do not exist or belong to
// another owner are reported as sql.ErrNoRows (wrapped), so callers cannot
// tell the two apart.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cipherstudio/cipherstudio/internal/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverLibSQL   = "libsql"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps a database connection implementing the persistence service.
type DB struct {
	conn   *sql.DB
	driver string
	path   string // sqlite only
}

// Open connects to the backend named by driver.
//
// For sqlite, dsn is a file path; the parent directory is created and WAL,
// busy timeout and foreign keys are enabled on every pooled connection.
// For postgres and libsql, dsn is passed to the driver unchanged.
//
// The caller MUST call Close() when done.
func Open(driver, dsn string) (*DB, error) {
	var (
		sqlDriver = driver
		connStr   = dsn
		path      string
	)

	switch driver {
	case DriverSQLite, "":
		driver, sqlDriver = DriverSQLite, "sqlite3"
		path = dsn
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = sqliteDSN(path)
	case DriverPostgres:
	case DriverLibSQL:
		if !libsqlAvailable {
			return nil, fmt.Errorf("driver %q requires a cgo build", driver)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, driver: driver, path: path}, nil
}

// OpenSQLite opens an embedded database file at path.
func OpenSQLite(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(wal)")
	// Write transactions lock at BEGIN and wait out busy_timeout.
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Driver returns the backend name.
func (db *DB) Driver() string {
	return db.driver
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection. For sqlite the WAL is checkpointed
// first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.driver == DriverSQLite {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		separator TEXT NOT NULL DEFAULT '/',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('file', 'folder')),
		parent_id TEXT,
		content TEXT,
		PRIMARY KEY (project_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner_updated ON projects(owner_id, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id)`,
}

// InitSchema creates the projects and files tables if they don't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// addedColumns lists columns introduced after the first schema, so that
// older databases are brought up to date.
var addedColumns = []struct{ table, column, decl string }{
	{"projects", "separator", `TEXT NOT NULL DEFAULT '/'`},
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	for _, c := range addedColumns {
		probe := fmt.Sprintf("SELECT %s FROM %s LIMIT 0", c.column, c.table)
		if rows, err := db.conn.QueryContext(ctx, probe); err == nil {
			rows.Close()
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.decl)
		if _, err := db.conn.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// UpdateConnectionMetrics publishes pool statistics.
func (db *DB) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(db.conn.Stats().OpenConnections)
}

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// observe records how long the named query took.
func observe(name string, start time.Time) {
	metrics.RecordDBQuery(name, time.Since(start))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime returns the zero time for empty or unparsable values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
