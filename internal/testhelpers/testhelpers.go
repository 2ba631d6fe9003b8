// Package testhelpers provides shared test setup.
package testhelpers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/database"
	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// NewTestDB returns an in-memory SQLite database configured the same way as
// production, together with its dialect adapter. The database is
// automatically closed when the test completes.
func NewTestDB(t *testing.T) (*sql.DB, dialect.Dialect) {
	t.Helper()

	db, d, err := database.Open("sqlite", ":memory:", database.Options{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db, d
}

// NewQuietLogger returns a logrus logger that discards all output, keeping
// test runs readable.
func NewQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// SeedTab inserts a raw tab and its rows the way the external fetcher would.
func SeedTab(t *testing.T, db *sql.DB, d dialect.Dialect, id, title string, updatedAt time.Time, rowFields []map[string]string) {
	t.Helper()
	ctx := context.Background()
	now := domain.FormatTime(time.Now())

	tabInsert, err := d.Rewrite(dialect.Insert{
		Table:   "raw_tabs",
		Columns: []string{"id", "title", "source_updated_at", "fetched_at"},
	})
	if err != nil {
		t.Fatalf("rewrite tab insert: %v", err)
	}
	if _, err := db.ExecContext(ctx, tabInsert, id, title, domain.FormatTime(updatedAt), now); err != nil {
		t.Fatalf("insert tab %s: %v", id, err)
	}

	rowInsert, err := d.Rewrite(dialect.Insert{
		Table:   "raw_rows",
		Columns: []string{"tab_id", "row_number", "fields", "fetched_at"},
	})
	if err != nil {
		t.Fatalf("rewrite row insert: %v", err)
	}
	for i, fields := range rowFields {
		blob, err := json.Marshal(fields)
		if err != nil {
			t.Fatalf("marshal fields: %v", err)
		}
		if _, err := db.ExecContext(ctx, rowInsert, id, i+1, string(blob), now); err != nil {
			t.Fatalf("insert row %d of %s: %v", i+1, id, err)
		}
	}
}
