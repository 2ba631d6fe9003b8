// Package domain holds the entities shared by the normalization engine, the
// raw tab store and the sync tracker.
package domain

import "time"

// TableKind classifies what a source table holds.
type TableKind string

const (
	// KindResponse marks tables whose rows are survey submissions.
	KindResponse TableKind = "response"
	// KindReference marks static question/answer-definition tables.
	KindReference TableKind = "reference"
	// KindUnknown marks tables with no usable classification signal; they
	// are skipped, not treated as errors.
	KindUnknown TableKind = "unknown"
)

// SourceTable is one spreadsheet tab as delivered by the raw store. Its ID is
// assigned by the external provider and stable across syncs.
type SourceTable struct {
	ID              string
	Title           string
	Kind            TableKind
	RowCount        int
	SourceUpdatedAt time.Time
	FetchedAt       time.Time
}

// RawRow is one externally-fetched row of a source table. Fields carries the
// untyped cell values keyed by column name; no schema is enforced upstream.
// Keys preserves the column order of the source, which Fields cannot.
type RawRow struct {
	ID        int64
	TabID     string
	RowNumber int
	Fields    map[string]string
	Keys      []string
	FetchedAt time.Time
}
