// Package database opens and migrates either supported backend: an embedded
// SQLite file or a PostgreSQL server. Callers receive the *sql.DB together
// with the dialect adapter that all SQL for that connection must be rendered
// through.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"github.com/formsync/formsync/internal/dialect"
)

// Options holds connection-pool settings. They only apply to the server
// backend; SQLite is pinned to a single connection regardless.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a database for the given driver ("sqlite" or "postgres") and
// returns it with the matching dialect adapter.
func Open(driver, dsn string, opts Options) (*sql.DB, dialect.Dialect, error) {
	d, err := dialect.For(driver)
	if err != nil {
		return nil, nil, err
	}

	switch d.Name() {
	case "sqlite":
		db, err := openSQLite(dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, d, nil
	default:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
		return db, d, nil
	}
}

// openSQLite configures SQLite for production use: WAL mode, foreign keys
// enabled, busy timeout of 5s.
func openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single connection to avoid locking issues.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	return db, nil
}
