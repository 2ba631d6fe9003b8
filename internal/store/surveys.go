package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// SurveyStore persists surveys and everything a survey owns.
type SurveyStore interface {
	// EnsureSurvey returns the survey for a source table, creating it on
	// first sight.
	EnsureSurvey(ctx context.Context, q dialect.Querier, sourceTableID, name, description string) (*domain.Survey, error)
	// DeleteSurveyData removes all entities owned by a survey, in
	// dependency order: answers, then responses, then questions. The survey
	// row itself is kept so its id stays stable across re-syncs.
	DeleteSurveyData(ctx context.Context, q dialect.Querier, surveyID int64) error
	InsertQuestion(ctx context.Context, q dialect.Querier, question *domain.Question) (int64, error)
	InsertResponse(ctx context.Context, q dialect.Querier, response *domain.Response) (int64, error)
	InsertAnswer(ctx context.Context, q dialect.Querier, answer *domain.Answer) (int64, error)
	// QuestionsBySurvey returns a survey's questions in question order.
	QuestionsBySurvey(ctx context.Context, q dialect.Querier, surveyID int64) ([]domain.Question, error)
}

// SQLSurveyStore implements SurveyStore through the dialect adapter.
type SQLSurveyStore struct {
	d dialect.Dialect
}

// NewSQLSurveyStore creates a new SQLSurveyStore.
func NewSQLSurveyStore(d dialect.Dialect) *SQLSurveyStore {
	return &SQLSurveyStore{d: d}
}

// EnsureSurvey returns the survey for a source table, creating it on first
// sight.
func (s *SQLSurveyStore) EnsureSurvey(ctx context.Context, q dialect.Querier, sourceTableID, name, description string) (*domain.Survey, error) {
	query := fmt.Sprintf(
		`SELECT id, name, source_table_id, description FROM surveys WHERE source_table_id = %s`,
		s.d.Placeholder(1))

	var survey domain.Survey
	err := q.QueryRowContext(ctx, query, sourceTableID).Scan(
		&survey.ID, &survey.Name, &survey.SourceTableID, &survey.Description)
	if err == nil {
		return &survey, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get survey for %s: %w", sourceTableID, err)
	}

	id, err := s.d.InsertRow(ctx, q, dialect.Insert{
		Table:   "surveys",
		Columns: []string{"name", "source_table_id", "description"},
	}, name, sourceTableID, description)
	if err != nil {
		return nil, err
	}
	return &domain.Survey{ID: id, Name: name, SourceTableID: sourceTableID, Description: description}, nil
}

// DeleteSurveyData removes answers, responses and questions owned by a
// survey, in that order so foreign keys are never violated mid-delete.
func (s *SQLSurveyStore) DeleteSurveyData(ctx context.Context, q dialect.Querier, surveyID int64) error {
	p := s.d.Placeholder(1)
	steps := []string{
		fmt.Sprintf(`DELETE FROM survey_answers WHERE response_id IN (SELECT id FROM survey_responses WHERE survey_id = %s)`, p),
		fmt.Sprintf(`DELETE FROM survey_responses WHERE survey_id = %s`, p),
		fmt.Sprintf(`DELETE FROM survey_questions WHERE survey_id = %s`, p),
	}
	for _, step := range steps {
		if _, err := q.ExecContext(ctx, step, surveyID); err != nil {
			return fmt.Errorf("delete survey %d data: %w", surveyID, err)
		}
	}
	return nil
}

// InsertQuestion inserts one question and returns its id.
func (s *SQLSurveyStore) InsertQuestion(ctx context.Context, q dialect.Querier, question *domain.Question) (int64, error) {
	return s.d.InsertRow(ctx, q, dialect.Insert{
		Table:   "survey_questions",
		Columns: []string{"survey_id", "question_key", "question_text", "question_order"},
	}, question.SurveyID, question.Key, question.Text, question.Order)
}

// InsertResponse inserts one response and returns its id.
func (s *SQLSurveyStore) InsertResponse(ctx context.Context, q dialect.Querier, response *domain.Response) (int64, error) {
	return s.d.InsertRow(ctx, q, dialect.Insert{
		Table:   "survey_responses",
		Columns: []string{"survey_id", "respondent_id", "submitted_at", "source_row_id"},
	}, response.SurveyID, response.RespondentID, domain.FormatTime(response.SubmittedAt), response.SourceRowID)
}

// InsertAnswer inserts one answer and returns its id. Typed fields are
// nullable; exactly one of {text present, is_empty} holds.
func (s *SQLSurveyStore) InsertAnswer(ctx context.Context, q dialect.Querier, answer *domain.Answer) (int64, error) {
	var text any
	if !answer.Empty {
		text = answer.Text
	}
	var numeric any
	if answer.Numeric != nil {
		numeric = *answer.Numeric
	}
	var boolean any
	if answer.Boolean != nil {
		boolean = *answer.Boolean
	}
	return s.d.InsertRow(ctx, q, dialect.Insert{
		Table:   "survey_answers",
		Columns: []string{"response_id", "question_id", "answer_text", "answer_numeric", "answer_boolean", "is_empty"},
	}, answer.ResponseID, answer.QuestionID, text, numeric, boolean, answer.Empty)
}

// QuestionsBySurvey returns a survey's questions in question order.
func (s *SQLSurveyStore) QuestionsBySurvey(ctx context.Context, q dialect.Querier, surveyID int64) ([]domain.Question, error) {
	query := fmt.Sprintf(
		`SELECT id, survey_id, question_key, question_text, question_order
		 FROM survey_questions WHERE survey_id = %s ORDER BY question_order`,
		s.d.Placeholder(1))

	rows, err := q.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions for survey %d: %w", surveyID, err)
	}
	defer func() { _ = rows.Close() }()

	var questions []domain.Question
	for rows.Next() {
		var question domain.Question
		if err := rows.Scan(&question.ID, &question.SurveyID, &question.Key, &question.Text, &question.Order); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return questions, nil
}
