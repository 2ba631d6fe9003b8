package normalize_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/formsync/formsync/internal/classify"
	"github.com/formsync/formsync/internal/database"
	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
	"github.com/formsync/formsync/internal/normalize"
	"github.com/formsync/formsync/internal/rawstore"
	"github.com/formsync/formsync/internal/store"
	"github.com/formsync/formsync/internal/testhelpers"
)

func setup(t *testing.T) (*normalize.Normalizer, *sql.DB, dialect.Dialect, *store.Store) {
	t.Helper()
	db, d := testhelpers.NewTestDB(t)
	ctx := context.Background()

	if err := database.Migrate(ctx, db, d); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(db, d)
	logger := testhelpers.NewQuietLogger()
	tabs := rawstore.NewSQLTabStore(db, d, logger)
	n := normalize.NewNormalizer(db, st, tabs, classify.NewKeywordClassifier(), logger, 5)
	return n, db, d, st
}

// Three rows, two sharing a browser/device/day fingerprint, two question
// columns. Questions/answers and respondent dedup must all line up.
func seedFeedbackTab(t *testing.T, db *sql.DB, d dialect.Dialect) {
	t.Helper()
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testhelpers.SeedTab(t, db, d, "t1", "Week 1 Feedback", updated, []map[string]string{
		{"Date": "2024-03-01 09:15:00", "Browser": "Chrome", "Device": "Mobile", "Q1": "5", "Q2": "yes"},
		{"Date": "2024-03-01 11:30:00", "Browser": "Firefox", "Device": "Desktop", "Q1": "3", "Q2": "it was fine"},
		{"Date": "2024-03-01 17:45:00", "Browser": "Chrome", "Device": "Mobile", "Q1": "4", "Q2": ""},
	})
}

func TestNormalizeFullImport(t *testing.T) {
	n, db, d, _ := setup(t)
	ctx := context.Background()
	seedFeedbackTab(t, db, d)

	stats, err := n.NormalizeTable(ctx, "t1", normalize.ModeFullImport)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if stats.Skipped {
		t.Fatalf("table skipped: %s", stats.SkipReason)
	}
	if stats.Responses != 3 || stats.Questions != 2 || stats.Answers != 6 {
		t.Errorf("stats = %+v, want 3 responses, 2 questions, 6 answers", stats)
	}
	if stats.Errors() != 0 {
		t.Errorf("unexpected row errors: %v", stats.RowErrors)
	}

	var respondents int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM respondents").Scan(&respondents); err != nil {
		t.Fatalf("count respondents: %v", err)
	}
	if respondents != 2 {
		t.Errorf("respondents = %d, want 2 after dedup", respondents)
	}

	// The duplicated fingerprint accumulated both submissions.
	var total int
	err = db.QueryRowContext(ctx,
		"SELECT total_responses FROM respondents WHERE browser = ?", "Chrome").Scan(&total)
	if err != nil {
		t.Fatalf("get chrome respondent: %v", err)
	}
	if total != 2 {
		t.Errorf("total_responses = %d, want 2", total)
	}
}

func TestNormalizeIncrementalReplaceIsIdempotent(t *testing.T) {
	n, db, d, st := setup(t)
	ctx := context.Background()
	seedFeedbackTab(t, db, d)

	first, err := n.NormalizeTable(ctx, "t1", normalize.ModeIncrementalReplace)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	survey, err := st.Surveys.EnsureSurvey(ctx, db, "t1", "", "")
	if err != nil {
		t.Fatalf("get survey: %v", err)
	}
	questionsBefore, err := st.Surveys.QuestionsBySurvey(ctx, db, survey.ID)
	if err != nil {
		t.Fatalf("questions before: %v", err)
	}

	second, err := n.NormalizeTable(ctx, "t1", normalize.ModeIncrementalReplace)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Responses != second.Responses || first.Answers != second.Answers || first.Questions != second.Questions {
		t.Errorf("stats drifted across runs: %+v vs %+v", first, second)
	}

	for _, table := range []string{"survey_responses", "survey_answers", "survey_questions"} {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		want := map[string]int{"survey_responses": 3, "survey_answers": 6, "survey_questions": 2}[table]
		if n != want {
			t.Errorf("%s = %d rows, want %d", table, n, want)
		}
	}

	// Respondents are never replaced, so their ids hold across runs, and the
	// survey id stays pinned to the source table.
	var respondents int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM respondents").Scan(&respondents)
	if respondents != 2 {
		t.Errorf("respondents = %d, want 2", respondents)
	}
	again, err := st.Surveys.EnsureSurvey(ctx, db, "t1", "", "")
	if err != nil {
		t.Fatalf("get survey again: %v", err)
	}
	if again.ID != survey.ID {
		t.Errorf("survey id changed: %d != %d", again.ID, survey.ID)
	}
	questionsAfter, err := st.Surveys.QuestionsBySurvey(ctx, db, again.ID)
	if err != nil {
		t.Fatalf("questions after: %v", err)
	}
	if len(questionsBefore) != len(questionsAfter) {
		t.Fatalf("question count changed: %d != %d", len(questionsBefore), len(questionsAfter))
	}
	for i := range questionsBefore {
		if questionsBefore[i].Key != questionsAfter[i].Key || questionsBefore[i].Order != questionsAfter[i].Order {
			t.Errorf("question %d changed: %+v vs %+v", i, questionsBefore[i], questionsAfter[i])
		}
	}
}

func TestNormalizeSkipsReferenceTable(t *testing.T) {
	n, db, d, _ := setup(t)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testhelpers.SeedTab(t, db, d, "ref", "Quiz Answer Sheet", updated, []map[string]string{
		{"Question": "Q1", "Answer": "B"},
	})

	stats, err := n.NormalizeTable(ctx, "ref", normalize.ModeFullImport)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !stats.Skipped {
		t.Fatal("expected reference table to be skipped")
	}
	if stats.Responses != 0 || stats.Questions != 0 || stats.Answers != 0 {
		t.Errorf("skipped table produced stats: %+v", stats)
	}

	var surveys int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM surveys").Scan(&surveys)
	if surveys != 0 {
		t.Errorf("skipped table created %d surveys", surveys)
	}
}

func TestNormalizeCollectsRowErrors(t *testing.T) {
	n, db, d, _ := setup(t)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testhelpers.SeedTab(t, db, d, "t1", "Week 1 Feedback", updated, []map[string]string{
		{"Date": "2024-03-01 09:15:00", "Browser": "Chrome", "Device": "Mobile", "Q1": "5"},
		{"Date": "last tuesday-ish", "Browser": "Firefox", "Device": "Desktop", "Q1": "3"},
	})
	// A row the fetcher stored with a corrupt field blob.
	now := domain.FormatTime(time.Now())
	if _, err := db.ExecContext(ctx,
		`INSERT INTO raw_rows (tab_id, row_number, fields, fetched_at) VALUES (?, ?, ?, ?)`,
		"t1", 3, `{broken`, now); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	stats, err := n.NormalizeTable(ctx, "t1", normalize.ModeFullImport)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if stats.Responses != 1 {
		t.Errorf("responses = %d, want 1 (bad rows skipped)", stats.Responses)
	}
	if stats.Errors() != 2 {
		t.Fatalf("row errors = %v, want 2", stats.RowErrors)
	}
	if stats.RowErrors[0].RowNumber != 2 || stats.RowErrors[1].RowNumber != 3 {
		t.Errorf("row errors on rows %d and %d, want 2 and 3",
			stats.RowErrors[0].RowNumber, stats.RowErrors[1].RowNumber)
	}
}

func TestNormalizeMissingDateUsesFetchTime(t *testing.T) {
	n, db, d, _ := setup(t)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testhelpers.SeedTab(t, db, d, "t1", "Week 1 Feedback", updated, []map[string]string{
		{"Browser": "Chrome", "Device": "Mobile", "Q1": "5"},
	})

	stats, err := n.NormalizeTable(ctx, "t1", normalize.ModeFullImport)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if stats.Responses != 1 || stats.Errors() != 0 {
		t.Fatalf("stats = %+v, want 1 clean response", stats)
	}

	var submitted, fetched string
	err = db.QueryRowContext(ctx,
		`SELECT r.submitted_at, raw.fetched_at FROM survey_responses r
		 JOIN raw_rows raw ON raw.id = r.source_row_id`).Scan(&submitted, &fetched)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if submitted != fetched {
		t.Errorf("submitted_at = %s, want fetch time %s", submitted, fetched)
	}
}

func TestNormalizeExcludesMetadataColumns(t *testing.T) {
	n, db, d, st := setup(t)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testhelpers.SeedTab(t, db, d, "t1", "Week 1 Feedback", updated, []map[string]string{
		{"Date": "2024-03-01 09:15:00", "Browser": "Chrome", "Device": "Mobile", "_row_hash": "abc", "Q1": "5"},
	})

	stats, err := n.NormalizeTable(ctx, "t1", normalize.ModeFullImport)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if stats.Questions != 1 {
		t.Fatalf("questions = %d, want only Q1", stats.Questions)
	}

	survey, err := st.Surveys.EnsureSurvey(ctx, db, "t1", "", "")
	if err != nil {
		t.Fatalf("get survey: %v", err)
	}
	questions, err := st.Surveys.QuestionsBySurvey(ctx, db, survey.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 1 || questions[0].Key != "Q1" {
		t.Errorf("questions = %+v, want [Q1]", questions)
	}
}
