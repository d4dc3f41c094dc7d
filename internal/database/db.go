package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL backend behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// DB wraps the sql.DB connection
type DB struct {
	Conn    *sql.DB
	Dialect Dialect

	logger        *slog.Logger
	txMaxAttempts int
	clock         func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for migration and retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithTxMaxAttempts bounds how many times a unit of work is attempted when
// the backend reports a serialization conflict.
func WithTxMaxAttempts(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.txMaxAttempts = n
		}
	}
}

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(clock func() time.Time) Option {
	return func(db *DB) {
		if clock != nil {
			db.clock = clock
		}
	}
}

// DialectFor picks the backend from a DATABASE_URL. postgres:// and
// postgresql:// URLs select PostgreSQL; anything else is a SQLite path.
func DialectFor(databaseURL string) Dialect {
	lower := strings.ToLower(databaseURL)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// New creates a new database connection and runs migrations
func New(databaseURL string, opts ...Option) (*DB, error) {
	db, err := Open(databaseURL, opts...)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(context.Background()); err != nil {
		db.Conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.logger.Info("database initialized", "dialect", string(db.Dialect))
	return db, nil
}

// Open connects without migrating.
func Open(databaseURL string, opts ...Option) (*DB, error) {
	db := &DB{
		Dialect:       DialectFor(databaseURL),
		logger:        slog.Default(),
		txMaxAttempts: 3,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	dsn := databaseURL
	if db.Dialect == DialectSQLite {
		dsn = sqliteDSN(databaseURL)
	}

	conn, err := sql.Open(string(db.Dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if db.Dialect == DialectSQLite {
		// One writer at a time; also keeps :memory: databases on a single connection.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.Conn = conn
	return db, nil
}

func sqliteDSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if !strings.Contains(path, ":memory:") {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Migrate creates the contacts table and its lookup indexes if missing.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.Dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := db.Conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.Conn.Close()
}

func (db *DB) now() time.Time {
	return db.clock().UTC()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    phone_number TEXT,
    email TEXT,
    linked_id INTEGER,
    link_precedence TEXT NOT NULL CHECK(link_precedence IN ('primary', 'secondary')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    FOREIGN KEY (linked_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_phone ON contacts(phone_number);
CREATE INDEX IF NOT EXISTS idx_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_linked_id ON contacts(linked_id);
CREATE INDEX IF NOT EXISTS idx_precedence ON contacts(link_precedence);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id BIGSERIAL PRIMARY KEY,
    phone_number TEXT,
    email TEXT,
    linked_id BIGINT REFERENCES contacts(id),
    link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_phone ON contacts(phone_number);
CREATE INDEX IF NOT EXISTS idx_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_linked_id ON contacts(linked_id);
CREATE INDEX IF NOT EXISTS idx_precedence ON contacts(link_precedence);
`
