package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// SyncRecordStore persists incremental-sync state per source table. Written
// only by the sync tracker and normalization engine.
type SyncRecordStore interface {
	Get(ctx context.Context, q dialect.Querier, sourceTableID string) (*domain.SyncRecord, error)
	// All returns every sync record keyed by source table id.
	All(ctx context.Context, q dialect.Querier) (map[string]domain.SyncRecord, error)
	// Upsert inserts or fully replaces the record for a source table.
	Upsert(ctx context.Context, q dialect.Querier, rec domain.SyncRecord) error
}

// SQLSyncRecordStore implements SyncRecordStore through the dialect adapter.
type SQLSyncRecordStore struct {
	d dialect.Dialect
}

// NewSQLSyncRecordStore creates a new SQLSyncRecordStore.
func NewSQLSyncRecordStore(d dialect.Dialect) *SQLSyncRecordStore {
	return &SQLSyncRecordStore{d: d}
}

// Upsert inserts or fully replaces the record for a source table, using the
// adapter's replace-on-conflict policy keyed on source_table_id.
func (s *SQLSyncRecordStore) Upsert(ctx context.Context, q dialect.Querier, rec domain.SyncRecord) error {
	upsert, err := s.d.Rewrite(dialect.Insert{
		Table:      "sync_tracking",
		Columns:    []string{"source_table_id", "last_sync_at", "last_source_update", "row_count", "status"},
		OnConflict: dialect.ConflictReplace,
	})
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, upsert,
		rec.SourceTableID,
		domain.FormatTime(rec.LastSyncAt),
		domain.FormatTime(rec.LastSourceUpdate),
		rec.RowCount,
		string(rec.Status))
	if err != nil {
		return fmt.Errorf("upsert sync record for %s: %w", rec.SourceTableID, err)
	}
	return nil
}

// Get returns the sync record for a source table, or ErrNotFound.
func (s *SQLSyncRecordStore) Get(ctx context.Context, q dialect.Querier, sourceTableID string) (*domain.SyncRecord, error) {
	query := fmt.Sprintf(
		`SELECT source_table_id, last_sync_at, last_source_update, row_count, status
		 FROM sync_tracking WHERE source_table_id = %s`,
		s.d.Placeholder(1))

	rec, err := scanSyncRecord(q.QueryRowContext(ctx, query, sourceTableID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sync record for %s: %w", sourceTableID, err)
	}
	return rec, nil
}

// All returns every sync record keyed by source table id.
func (s *SQLSyncRecordStore) All(ctx context.Context, q dialect.Querier) (map[string]domain.SyncRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT source_table_id, last_sync_at, last_source_update, row_count, status FROM sync_tracking`)
	if err != nil {
		return nil, fmt.Errorf("list sync records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]domain.SyncRecord)
	for rows.Next() {
		rec, err := scanSyncRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		records[rec.SourceTableID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func scanSyncRecord(scan func(dest ...any) error) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	var lastSync, lastUpdate, status string
	if err := scan(&rec.SourceTableID, &lastSync, &lastUpdate, &rec.RowCount, &status); err != nil {
		return nil, err
	}
	var err error
	if rec.LastSyncAt, err = domain.ParseTime(lastSync); err != nil {
		return nil, fmt.Errorf("last_sync_at: %w", err)
	}
	if rec.LastSourceUpdate, err = domain.ParseTime(lastUpdate); err != nil {
		return nil, fmt.Errorf("last_source_update: %w", err)
	}
	rec.Status = domain.SyncStatus(status)
	return &rec, nil
}
