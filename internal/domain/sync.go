package domain

import "time"

// SyncStatus is the outcome state of a sync record.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncRecord tracks incremental-sync state for one SourceTable. It is written
// only by the sync tracker and normalization engine, never by readers.
type SyncRecord struct {
	SourceTableID    string
	LastSyncAt       time.Time
	LastSourceUpdate time.Time
	RowCount         int
	Status           SyncStatus
}
