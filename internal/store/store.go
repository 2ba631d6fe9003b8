// Package store persists the normalized survey model. Statements are
// rendered through the dialect adapter so the same code path serves both
// backends. Methods take a dialect.Querier rather than holding the *sql.DB,
// because a normalization pass runs every write for one table inside a single
// transaction.
package store

import (
	"database/sql"
	"errors"

	"github.com/formsync/formsync/internal/dialect"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store holds all sub-stores used by the engine.
type Store struct {
	DB          *sql.DB
	Dialect     dialect.Dialect
	Surveys     SurveyStore
	Respondents RespondentStore
	Sync        SyncRecordStore
}

// New creates a Store with all sub-stores initialized.
func New(db *sql.DB, d dialect.Dialect) *Store {
	return &Store{
		DB:          db,
		Dialect:     d,
		Surveys:     NewSQLSurveyStore(d),
		Respondents: NewSQLRespondentStore(d),
		Sync:        NewSQLSyncRecordStore(d),
	}
}
