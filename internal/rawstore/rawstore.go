// Package rawstore is the read-only view over raw spreadsheet rows. The
// tables it reads (raw_tabs, raw_rows) are populated by the external fetcher;
// nothing in this repository writes them outside of dev seeding.
package rawstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// TabStore is the read-only accessor the engine consumes.
type TabStore interface {
	// ListTabs returns every source table with its live row count and
	// last source update timestamp.
	ListTabs(ctx context.Context) ([]domain.SourceTable, error)
	// Tab returns one source table by id, or an error if it does not exist.
	Tab(ctx context.Context, tabID string) (*domain.SourceTable, error)
	// Rows returns all rows of a tab in row-number order. Rows whose stored
	// field blob cannot be decoded are returned with nil Fields; the caller
	// decides whether that is fatal.
	Rows(ctx context.Context, tabID string) ([]domain.RawRow, error)
	// SampleRows returns at most n leading rows of a tab.
	SampleRows(ctx context.Context, tabID string, n int) ([]domain.RawRow, error)
}

// SQLTabStore implements TabStore over either backend.
type SQLTabStore struct {
	db     *sql.DB
	d      dialect.Dialect
	logger *logrus.Logger
}

// NewSQLTabStore creates a SQLTabStore.
func NewSQLTabStore(db *sql.DB, d dialect.Dialect, logger *logrus.Logger) *SQLTabStore {
	return &SQLTabStore{db: db, d: d, logger: logger}
}

// ListTabs returns every raw tab with a live row count, so the sync tracker
// always diffs against the current state of the raw store.
func (s *SQLTabStore) ListTabs(ctx context.Context) ([]domain.SourceTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.source_updated_at, t.fetched_at, COUNT(r.id)
		 FROM raw_tabs t
		 LEFT JOIN raw_rows r ON r.tab_id = t.id
		 GROUP BY t.id, t.title, t.source_updated_at, t.fetched_at
		 ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tabs []domain.SourceTable
	for rows.Next() {
		var tab domain.SourceTable
		var updated, fetched string
		if err := rows.Scan(&tab.ID, &tab.Title, &updated, &fetched, &tab.RowCount); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		if tab.SourceUpdatedAt, err = domain.ParseTime(updated); err != nil {
			return nil, fmt.Errorf("tab %s source_updated_at: %w", tab.ID, err)
		}
		if tab.FetchedAt, err = domain.ParseTime(fetched); err != nil {
			return nil, fmt.Errorf("tab %s fetched_at: %w", tab.ID, err)
		}
		tab.Kind = domain.KindUnknown
		tabs = append(tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tabs, nil
}

// Tab returns one source table by id with its live row count.
func (s *SQLTabStore) Tab(ctx context.Context, tabID string) (*domain.SourceTable, error) {
	query := fmt.Sprintf(
		`SELECT t.id, t.title, t.source_updated_at, t.fetched_at, COUNT(r.id)
		 FROM raw_tabs t
		 LEFT JOIN raw_rows r ON r.tab_id = t.id
		 WHERE t.id = %s
		 GROUP BY t.id, t.title, t.source_updated_at, t.fetched_at`,
		s.d.Placeholder(1))

	var tab domain.SourceTable
	var updated, fetched string
	err := s.db.QueryRowContext(ctx, query, tabID).Scan(
		&tab.ID, &tab.Title, &updated, &fetched, &tab.RowCount)
	if err != nil {
		return nil, fmt.Errorf("get tab %s: %w", tabID, err)
	}
	if tab.SourceUpdatedAt, err = domain.ParseTime(updated); err != nil {
		return nil, fmt.Errorf("tab %s source_updated_at: %w", tab.ID, err)
	}
	if tab.FetchedAt, err = domain.ParseTime(fetched); err != nil {
		return nil, fmt.Errorf("tab %s fetched_at: %w", tab.ID, err)
	}
	tab.Kind = domain.KindUnknown
	return &tab, nil
}

// Rows returns all raw rows of a tab in row-number order.
func (s *SQLTabStore) Rows(ctx context.Context, tabID string) ([]domain.RawRow, error) {
	return s.query(ctx, tabID, 0)
}

// SampleRows returns at most n leading rows of a tab.
func (s *SQLTabStore) SampleRows(ctx context.Context, tabID string, n int) ([]domain.RawRow, error) {
	if n <= 0 {
		n = 1
	}
	return s.query(ctx, tabID, n)
}

func (s *SQLTabStore) query(ctx context.Context, tabID string, limit int) ([]domain.RawRow, error) {
	query := fmt.Sprintf(
		`SELECT id, tab_id, row_number, fields, fetched_at FROM raw_rows WHERE tab_id = %s ORDER BY row_number`,
		s.d.Placeholder(1))
	args := []any{tabID}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", s.d.Placeholder(2))
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw rows for %s: %w", tabID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.RawRow
	for rows.Next() {
		var r domain.RawRow
		var fieldsJSON, fetched string
		if err := rows.Scan(&r.ID, &r.TabID, &r.RowNumber, &fieldsJSON, &fetched); err != nil {
			return nil, fmt.Errorf("scan raw row: %w", err)
		}
		if r.FetchedAt, err = domain.ParseTime(fetched); err != nil {
			return nil, fmt.Errorf("raw row %d fetched_at: %w", r.ID, err)
		}
		if r.Fields, r.Keys, err = decodeFields(fieldsJSON); err != nil {
			// Malformed upstream data must not abort the tab; surface the row
			// with nil Fields and let the normalizer count it.
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tab_id":     tabID,
				"row_number": r.RowNumber,
			}).Warn("undecodable raw row fields")
			r.Fields = nil
			r.Keys = nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// decodeFields decodes a stored field blob into a value map plus the column
// names in their original order. encoding/json maps forget key order, and
// question order must follow source column order, so the object is walked
// token by token.
func decodeFields(blob string) (map[string]string, []string, error) {
	dec := json.NewDecoder(strings.NewReader(blob))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("fields blob is not a JSON object")
	}

	fields := make(map[string]string)
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("non-string field key %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := fields[key]; !dup {
			keys = append(keys, key)
		}
		fields[key] = value
	}
	return fields, keys, nil
}
