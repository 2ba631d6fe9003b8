package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// RespondentStore persists deduplicated anonymous respondents. Respondents
// survive every re-sync; they are only ever inserted or updated.
type RespondentStore interface {
	// Upsert inserts a respondent on first sight of its fingerprint and
	// otherwise bumps total_responses and last_seen. The returned id is
	// stable for the lifetime of the fingerprint, and first_seen is never
	// overwritten.
	Upsert(ctx context.Context, q dialect.Querier, fingerprint, browser, device string, seenAt time.Time) (int64, error)
	// GetByFingerprint returns the respondent with the given fingerprint, or
	// ErrNotFound.
	GetByFingerprint(ctx context.Context, q dialect.Querier, fingerprint string) (*domain.Respondent, error)
}

// SQLRespondentStore implements RespondentStore through the dialect adapter.
//
// The upsert is deliberately select-then-write rather than a rendered
// conflict-replace: the embedded backend's INSERT OR REPLACE reassigns the
// surrogate id and would clobber first_seen, breaking fingerprint/id
// stability across syncs.
type SQLRespondentStore struct {
	d dialect.Dialect
}

// NewSQLRespondentStore creates a new SQLRespondentStore.
func NewSQLRespondentStore(d dialect.Dialect) *SQLRespondentStore {
	return &SQLRespondentStore{d: d}
}

// Upsert inserts or bumps the respondent for a fingerprint and returns its id.
func (s *SQLRespondentStore) Upsert(ctx context.Context, q dialect.Querier, fingerprint, browser, device string, seenAt time.Time) (int64, error) {
	existing, err := s.GetByFingerprint(ctx, q, fingerprint)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	if err == nil {
		update := fmt.Sprintf(
			`UPDATE respondents SET total_responses = total_responses + 1, last_seen = %s WHERE id = %s`,
			s.d.Placeholder(1), s.d.Placeholder(2))
		if _, err := q.ExecContext(ctx, update, domain.FormatTime(seenAt), existing.ID); err != nil {
			return 0, fmt.Errorf("bump respondent %d: %w", existing.ID, err)
		}
		return existing.ID, nil
	}

	ts := domain.FormatTime(seenAt)
	return s.d.InsertRow(ctx, q, dialect.Insert{
		Table:   "respondents",
		Columns: []string{"fingerprint", "browser", "device", "first_seen", "last_seen", "total_responses"},
	}, fingerprint, browser, device, ts, ts, 1)
}

// GetByFingerprint returns the respondent with the given fingerprint.
func (s *SQLRespondentStore) GetByFingerprint(ctx context.Context, q dialect.Querier, fingerprint string) (*domain.Respondent, error) {
	query := fmt.Sprintf(
		`SELECT id, fingerprint, browser, device, first_seen, last_seen, total_responses
		 FROM respondents WHERE fingerprint = %s`,
		s.d.Placeholder(1))

	var r domain.Respondent
	var firstSeen, lastSeen string
	err := q.QueryRowContext(ctx, query, fingerprint).Scan(
		&r.ID, &r.Fingerprint, &r.Browser, &r.Device, &firstSeen, &lastSeen, &r.TotalResponses)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get respondent: %w", err)
	}
	if r.FirstSeen, err = domain.ParseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("respondent %d first_seen: %w", r.ID, err)
	}
	if r.LastSeen, err = domain.ParseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("respondent %d last_seen: %w", r.ID, err)
	}
	return &r, nil
}
