// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and the server
// binary cross-compiles like any other Go program.
//
// SCHEMA:
// The schema lives in migrations/*.sql and is embedded into the binary.
// golang-migrate tracks which versions have run in a schema_migrations table,
// so New is safe to call against an existing database file.
//
// CHANGE FEED:
// Every committed row write is handed to an optional changefeed.Publisher
// after the transaction commits. Nothing is published for a rolled-back
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sakif/wishlist/internal/changefeed"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn      *sql.DB
	publisher changefeed.Publisher
	now       func() time.Time
}

// Option customises a DB.
type Option func(*DB)

// WithPublisher sends every committed change to p.
func WithPublisher(p changefeed.Publisher) Option {
	return func(db *DB) { db.publisher = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New opens the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/wishlist.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// An in-memory database only exists inside the connection that created it, so
// the pool is pinned to a single connection in that case. Callers must not
// start a query while another one's rows are still open.
func New(dbPath string, opts ...Option) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath
	if !memory {
		dsn = "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// Foreign keys are off by default; the cascades depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if !memory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate applies the embedded migrations.
//
// The migrate instance is deliberately not closed: closing it closes the
// underlying *sql.DB, which DB keeps using.
func (db *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// timestamp returns the current time in UTC. All stored times are UTC so
// that text comparisons inside SQLite order correctly.
func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

// txChanges collects the changes a transaction produces so they can be
// published once it commits.
type txChanges []changefeed.Change

func (c *txChanges) add(table string, typ changefeed.EventType, newRow, oldRow any, at time.Time) {
	ch := changefeed.Change{Table: table, Type: typ, CommitTimestamp: at}
	if newRow != nil {
		ch.New = changefeed.Record(newRow)
	}
	if oldRow != nil {
		ch.Old = changefeed.Record(oldRow)
	}
	*c = append(*c, ch)
}

// withTx runs fn inside a transaction and publishes the collected changes
// after a successful commit.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx, changes *txChanges) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	var changes txChanges
	if err := fn(tx, &changes); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}

	if db.publisher != nil {
		for _, c := range changes {
			db.publisher.Publish(c)
		}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
