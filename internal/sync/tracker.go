// Package sync decides which source tables need normalizing and runs the
// periodic background passes that keep the relational model current.
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/domain"
	"github.com/formsync/formsync/internal/rawstore"
	"github.com/formsync/formsync/internal/store"
)

// Diff buckets every source table by what the next pass should do with it.
type Diff struct {
	New       []domain.SourceTable
	Updated   []domain.SourceTable
	Unchanged []domain.SourceTable
}

// Tracker compares the live raw store against the persisted sync records.
// It never retries by itself; cadence belongs to the scheduler.
type Tracker struct {
	db      *sql.DB
	tabs    rawstore.TabStore
	records store.SyncRecordStore
	logger  *logrus.Logger
}

// NewTracker creates a Tracker.
func NewTracker(db *sql.DB, tabs rawstore.TabStore, records store.SyncRecordStore, logger *logrus.Logger) *Tracker {
	return &Tracker{db: db, tabs: tabs, records: records, logger: logger}
}

// Diff classifies every source table against its sync record. A table with no
// record is new; a table whose row count or source-update timestamp moved, or
// whose last pass did not complete (failed, or pending from an interrupted
// run), is updated; everything else is unchanged.
func (t *Tracker) Diff(ctx context.Context) (*Diff, error) {
	tabs, err := t.tabs.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	records, err := t.records.All(ctx, t.db)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	var diff Diff
	for _, tab := range tabs {
		rec, ok := records[tab.ID]
		switch {
		case !ok:
			diff.New = append(diff.New, tab)
		case rec.Status != domain.SyncCompleted,
			rec.RowCount != tab.RowCount,
			tab.SourceUpdatedAt.After(rec.LastSourceUpdate):
			diff.Updated = append(diff.Updated, tab)
		default:
			diff.Unchanged = append(diff.Unchanged, tab)
		}
	}

	t.logger.WithFields(logrus.Fields{
		"new":       len(diff.New),
		"updated":   len(diff.Updated),
		"unchanged": len(diff.Unchanged),
	}).Debug("sync diff computed")
	return &diff, nil
}

// RecordOutcome upserts the sync record for a table after a pass, success or
// failure alike, so a failed table diffs as updated next time instead of
// unchanged.
func (t *Tracker) RecordOutcome(ctx context.Context, tab domain.SourceTable, status domain.SyncStatus) error {
	return t.records.Upsert(ctx, t.db, domain.SyncRecord{
		SourceTableID:    tab.ID,
		LastSyncAt:       time.Now(),
		LastSourceUpdate: tab.SourceUpdatedAt,
		RowCount:         tab.RowCount,
		Status:           status,
	})
}
