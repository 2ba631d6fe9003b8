// Package normalize turns raw schema-less spreadsheet rows into the
// relational survey model: surveys, questions, respondents, responses and
// answers. Each table is normalized inside a single transaction so readers
// only ever see a complete old or new state.
package normalize

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/classify"
	"github.com/formsync/formsync/internal/domain"
	"github.com/formsync/formsync/internal/rawstore"
	"github.com/formsync/formsync/internal/store"
)

// Mode selects how an already-normalized survey is treated.
type Mode string

const (
	// ModeFullImport normalizes on top of whatever is there; used for tables
	// never seen before.
	ModeFullImport Mode = "fullImport"
	// ModeIncrementalReplace deletes the survey's questions, responses and
	// answers first, then rebuilds them from the current raw rows.
	ModeIncrementalReplace Mode = "incrementalReplace"
)

// dateLayouts are the accepted submission timestamp formats, tried in order.
var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

// metadataPrefix marks columns injected by the fetcher rather than the form.
const metadataPrefix = "_"

// RowError is a non-fatal per-row failure. The row is skipped and counted;
// the rest of the table proceeds.
type RowError struct {
	RowNumber int
	Reason    string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}

// Stats is what one NormalizeTable run produced.
type Stats struct {
	Responses int
	Questions int
	Answers   int
	RowErrors []RowError
	// Skipped is set when the table did not classify as response data; the
	// run is a no-op, not a failure.
	Skipped    bool
	SkipReason string
}

// Errors returns the number of rows skipped over coercion failures.
func (s Stats) Errors() int { return len(s.RowErrors) }

// Normalizer drives the raw-to-relational pipeline for one table at a time.
type Normalizer struct {
	db         *sql.DB
	store      *store.Store
	tabs       rawstore.TabStore
	classifier classify.Classifier
	logger     *logrus.Logger
	sampleSize int
}

// NewNormalizer creates a Normalizer. sampleSize bounds how many leading rows
// the classifier sees.
func NewNormalizer(db *sql.DB, st *store.Store, tabs rawstore.TabStore, classifier classify.Classifier, logger *logrus.Logger, sampleSize int) *Normalizer {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	return &Normalizer{db: db, store: st, tabs: tabs, classifier: classifier, logger: logger, sampleSize: sampleSize}
}

// NormalizeTable normalizes one source table. Non-response tables are skipped
// with zero stats. Row-level failures are collected in Stats.RowErrors; any
// other failure rolls back the whole table and leaves previously committed
// state untouched.
func (n *Normalizer) NormalizeTable(ctx context.Context, tableID string, mode Mode) (Stats, error) {
	tab, err := n.tabs.Tab(ctx, tableID)
	if err != nil {
		return Stats{}, fmt.Errorf("load tab %s: %w", tableID, err)
	}

	sample, err := n.tabs.SampleRows(ctx, tableID, n.sampleSize)
	if err != nil {
		return Stats{}, fmt.Errorf("sample tab %s: %w", tableID, err)
	}
	kind := n.classifier.Classify(tab.Title, sample)
	if kind != domain.KindResponse {
		n.logger.WithFields(logrus.Fields{
			"table_id": tableID,
			"title":    tab.Title,
			"kind":     kind,
		}).Info("table skipped: not response data")
		return Stats{Skipped: true, SkipReason: fmt.Sprintf("classified as %s", kind)}, nil
	}

	rows, err := n.tabs.Rows(ctx, tableID)
	if err != nil {
		return Stats{}, fmt.Errorf("load rows of %s: %w", tableID, err)
	}

	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin normalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats, err := n.normalizeTx(ctx, tx, tab, rows, mode)
	if err != nil {
		return Stats{}, err
	}
	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit normalize tx: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"table_id":  tableID,
		"mode":      mode,
		"responses": stats.Responses,
		"questions": stats.Questions,
		"answers":   stats.Answers,
		"errors":    stats.Errors(),
	}).Info("table normalized")
	return stats, nil
}

func (n *Normalizer) normalizeTx(ctx context.Context, tx *sql.Tx, tab *domain.SourceTable, rows []domain.RawRow, mode Mode) (Stats, error) {
	var stats Stats

	survey, err := n.store.Surveys.EnsureSurvey(ctx, tx, tab.ID, tab.Title,
		fmt.Sprintf("Imported from %q", tab.Title))
	if err != nil {
		return stats, err
	}
	if mode == ModeIncrementalReplace {
		if err := n.store.Surveys.DeleteSurveyData(ctx, tx, survey.ID); err != nil {
			return stats, err
		}
	}

	questions, err := n.createQuestions(ctx, tx, survey.ID, rows)
	if err != nil {
		return stats, err
	}
	stats.Questions = len(questions)

	for _, row := range rows {
		if row.Fields == nil {
			stats.RowErrors = append(stats.RowErrors, n.rowError(tab.ID, row.RowNumber, "undecodable fields"))
			continue
		}

		submittedAt, err := submissionTime(row)
		if err != nil {
			stats.RowErrors = append(stats.RowErrors, n.rowError(tab.ID, row.RowNumber, err.Error()))
			continue
		}

		browser := row.Fields["Browser"]
		device := row.Fields["Device"]
		respondentID, err := n.store.Respondents.Upsert(ctx, tx, Fingerprint(browser, device, submittedAt), browser, device, submittedAt)
		if err != nil {
			return stats, fmt.Errorf("row %d: %w", row.RowNumber, err)
		}

		responseID, err := n.store.Surveys.InsertResponse(ctx, tx, &domain.Response{
			SurveyID:     survey.ID,
			RespondentID: respondentID,
			SubmittedAt:  submittedAt,
			SourceRowID:  row.ID,
		})
		if err != nil {
			return stats, fmt.Errorf("row %d: %w", row.RowNumber, err)
		}
		stats.Responses++

		for _, q := range questions {
			v := Coerce(row.Fields[q.Key])
			if _, err := n.store.Surveys.InsertAnswer(ctx, tx, &domain.Answer{
				ResponseID: responseID,
				QuestionID: q.ID,
				Text:       v.Text,
				Numeric:    v.Numeric,
				Boolean:    v.Boolean,
				Empty:      v.Empty,
			}); err != nil {
				return stats, fmt.Errorf("row %d question %s: %w", row.RowNumber, q.Key, err)
			}
			stats.Answers++
		}
	}
	return stats, nil
}

// createQuestions derives the survey's questions from the first decodable
// row's column order. Metadata columns never become questions.
func (n *Normalizer) createQuestions(ctx context.Context, tx *sql.Tx, surveyID int64, rows []domain.RawRow) ([]domain.Question, error) {
	var keys []string
	for _, row := range rows {
		if row.Keys != nil {
			keys = row.Keys
			break
		}
	}

	var questions []domain.Question
	for _, key := range keys {
		if isMetadataColumn(key) {
			continue
		}
		q := domain.Question{
			SurveyID: surveyID,
			Key:      key,
			Text:     key,
			Order:    len(questions),
		}
		id, err := n.store.Surveys.InsertQuestion(ctx, tx, &q)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", key, err)
		}
		q.ID = id
		questions = append(questions, q)
	}
	return questions, nil
}

func (n *Normalizer) rowError(tableID string, rowNumber int, reason string) RowError {
	n.logger.WithFields(logrus.Fields{
		"table_id":   tableID,
		"row_number": rowNumber,
		"reason":     reason,
	}).Warn("row skipped")
	return RowError{RowNumber: rowNumber, Reason: reason}
}

// isMetadataColumn reports whether a column carries submission metadata
// rather than an asked question.
func isMetadataColumn(key string) bool {
	if strings.HasPrefix(key, metadataPrefix) {
		return true
	}
	switch strings.ToLower(key) {
	case "date", "browser", "device":
		return true
	}
	return false
}

// submissionTime resolves a row's submission timestamp. A row without a Date
// column falls back to its fetch time; a Date value that will not parse is a
// row error, not silently guessed.
func submissionTime(row domain.RawRow) (time.Time, error) {
	raw, ok := row.Fields["Date"]
	if !ok || strings.TrimSpace(raw) == "" {
		return row.FetchedAt, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
