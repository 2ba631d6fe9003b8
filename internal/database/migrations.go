package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/formsync/formsync/internal/dialect"
	"github.com/formsync/formsync/internal/domain"
)

// migration is one versioned schema step. Tables are logical declarations
// rendered per backend by the dialect adapter; indexes use CREATE INDEX
// syntax that is identical on both backends so they stay literal.
type migration struct {
	tables  []dialect.CreateTable
	indexes []string
}

// migrations is the ordered migration list. The version number is the
// 1-based index into this slice.
var migrations = []migration{
	// Migration 1: raw tab store, normalized survey model, sync tracking.
	{
		tables: []dialect.CreateTable{
			{
				Name: "raw_tabs",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeText, NotNull: true, Unique: true},
					{Name: "title", Type: dialect.TypeText, NotNull: true},
					{Name: "source_updated_at", Type: dialect.TypeText, NotNull: true},
					{Name: "fetched_at", Type: dialect.TypeText, NotNull: true},
				},
			},
			{
				Name: "raw_rows",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "tab_id", Type: dialect.TypeText, NotNull: true, References: "raw_tabs(id)"},
					{Name: "row_number", Type: dialect.TypeInt, NotNull: true},
					{Name: "fields", Type: dialect.TypeText, NotNull: true}, // JSON object of cell values
					{Name: "fetched_at", Type: dialect.TypeText, NotNull: true},
				},
				Uniques: [][]string{{"tab_id", "row_number"}},
			},
			{
				Name: "surveys",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "name", Type: dialect.TypeText, NotNull: true},
					{Name: "source_table_id", Type: dialect.TypeText, NotNull: true, Unique: true},
					{Name: "description", Type: dialect.TypeText},
				},
			},
			{
				Name: "survey_questions",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "survey_id", Type: dialect.TypeInt, NotNull: true, References: "surveys(id)"},
					{Name: "question_key", Type: dialect.TypeText, NotNull: true},
					{Name: "question_text", Type: dialect.TypeText, NotNull: true},
					{Name: "question_order", Type: dialect.TypeInt, NotNull: true},
				},
				Uniques: [][]string{{"survey_id", "question_key"}},
			},
			{
				Name: "respondents",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "fingerprint", Type: dialect.TypeText, NotNull: true, Unique: true},
					{Name: "browser", Type: dialect.TypeText},
					{Name: "device", Type: dialect.TypeText},
					{Name: "first_seen", Type: dialect.TypeText, NotNull: true},
					{Name: "last_seen", Type: dialect.TypeText, NotNull: true},
					{Name: "total_responses", Type: dialect.TypeInt, NotNull: true},
				},
			},
			{
				Name: "survey_responses",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "survey_id", Type: dialect.TypeInt, NotNull: true, References: "surveys(id)"},
					{Name: "respondent_id", Type: dialect.TypeInt, NotNull: true, References: "respondents(id)"},
					{Name: "submitted_at", Type: dialect.TypeText, NotNull: true},
					{Name: "source_row_id", Type: dialect.TypeInt, NotNull: true},
				},
			},
			{
				Name: "survey_answers",
				Columns: []dialect.Column{
					{Name: "id", Type: dialect.TypeID},
					{Name: "response_id", Type: dialect.TypeInt, NotNull: true, References: "survey_responses(id)"},
					{Name: "question_id", Type: dialect.TypeInt, NotNull: true, References: "survey_questions(id)"},
					{Name: "answer_text", Type: dialect.TypeText},
					{Name: "answer_numeric", Type: dialect.TypeReal},
					{Name: "answer_boolean", Type: dialect.TypeBool},
					{Name: "is_empty", Type: dialect.TypeBool, NotNull: true},
				},
				Uniques: [][]string{{"response_id", "question_id"}},
			},
			{
				Name: "sync_tracking",
				Columns: []dialect.Column{
					{Name: "source_table_id", Type: dialect.TypeText, NotNull: true, Unique: true},
					{Name: "last_sync_at", Type: dialect.TypeText, NotNull: true},
					{Name: "last_source_update", Type: dialect.TypeText, NotNull: true},
					{Name: "row_count", Type: dialect.TypeInt, NotNull: true},
					{Name: "status", Type: dialect.TypeText, NotNull: true},
				},
			},
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_raw_rows_tab ON raw_rows(tab_id)`,
			`CREATE INDEX IF NOT EXISTS idx_questions_survey ON survey_questions(survey_id)`,
			`CREATE INDEX IF NOT EXISTS idx_responses_survey ON survey_responses(survey_id)`,
			`CREATE INDEX IF NOT EXISTS idx_responses_respondent ON survey_responses(respondent_id)`,
			`CREATE INDEX IF NOT EXISTS idx_answers_response ON survey_answers(response_id)`,
		},
	},
}

// Migrate runs all pending schema migrations, each inside its own
// transaction. Applied versions are tracked in the schema_migrations table.
func Migrate(ctx context.Context, db *sql.DB, d dialect.Dialect) error {
	// Ensure schema_migrations exists (outside any transaction so it's always
	// available for version checks). The DDL is valid on both backends.
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, m := range migrations {
		version := i + 1

		var exists int
		check := fmt.Sprintf("SELECT COUNT(*) FROM schema_migrations WHERE version = %s", d.Placeholder(1))
		if err := db.QueryRowContext(ctx, check, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}

		if err := applyMigration(ctx, tx, d, m); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", version, err)
		}

		record := fmt.Sprintf("INSERT INTO schema_migrations (version, applied_at) VALUES (%s, %s)",
			d.Placeholder(1), d.Placeholder(2))
		if _, err := tx.ExecContext(ctx, record, version, domain.FormatTime(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}

	return nil
}

func applyMigration(ctx context.Context, tx *sql.Tx, d dialect.Dialect, m migration) error {
	for _, t := range m.tables {
		ddl, err := d.Rewrite(t)
		if err != nil {
			return fmt.Errorf("render %s: %w", t.Name, err)
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	for _, idx := range m.indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("exec %q: %w", idx, err)
		}
	}
	return nil
}
