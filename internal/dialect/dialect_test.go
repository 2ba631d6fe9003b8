package dialect_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/formsync/formsync/internal/dialect"
)

var (
	_ dialect.Dialect = dialect.SQLite{}
	_ dialect.Dialect = dialect.Postgres{}
)

func TestPlaceholder(t *testing.T) {
	if got := (dialect.SQLite{}).Placeholder(3); got != "?" {
		t.Errorf("sqlite placeholder = %q, want ?", got)
	}
	if got := (dialect.Postgres{}).Placeholder(3); got != "$3" {
		t.Errorf("postgres placeholder = %q, want $3", got)
	}
}

func TestBoolLiteral(t *testing.T) {
	if got := (dialect.SQLite{}).BoolLiteral(true); got != "1" {
		t.Errorf("sqlite true = %q, want 1", got)
	}
	if got := (dialect.Postgres{}).BoolLiteral(false); got != "FALSE" {
		t.Errorf("postgres false = %q, want FALSE", got)
	}
}

func TestFor(t *testing.T) {
	d, err := dialect.For("sqlite")
	if err != nil || d.Name() != "sqlite" {
		t.Errorf("For(sqlite) = %v, %v", d, err)
	}
	d, err = dialect.For("pgx")
	if err != nil || d.Name() != "postgres" {
		t.Errorf("For(pgx) = %v, %v", d, err)
	}
	if _, err := dialect.For("oracle"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestCreateTableRewrite(t *testing.T) {
	table := dialect.CreateTable{
		Name: "respondents",
		Columns: []dialect.Column{
			{Name: "id", Type: dialect.TypeID},
			{Name: "fingerprint", Type: dialect.TypeText, NotNull: true, Unique: true},
			{Name: "total_responses", Type: dialect.TypeInt, NotNull: true},
			{Name: "score", Type: dialect.TypeReal},
			{Name: "active", Type: dialect.TypeBool},
			{Name: "survey_id", Type: dialect.TypeInt, References: "surveys(id)"},
		},
		Uniques: [][]string{{"fingerprint", "total_responses"}},
	}

	sqlite, err := (dialect.SQLite{}).Rewrite(table)
	if err != nil {
		t.Fatalf("sqlite rewrite: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS respondents",
		"id INTEGER PRIMARY KEY AUTOINCREMENT",
		"fingerprint TEXT NOT NULL UNIQUE",
		"total_responses INTEGER NOT NULL",
		"score REAL",
		"active BOOLEAN",
		"survey_id INTEGER REFERENCES surveys(id)",
		"UNIQUE (fingerprint, total_responses)",
	} {
		if !strings.Contains(sqlite, want) {
			t.Errorf("sqlite DDL missing %q:\n%s", want, sqlite)
		}
	}

	pg, err := (dialect.Postgres{}).Rewrite(table)
	if err != nil {
		t.Fatalf("postgres rewrite: %v", err)
	}
	for _, want := range []string{
		"id BIGSERIAL PRIMARY KEY",
		"total_responses BIGINT NOT NULL",
		"score DOUBLE PRECISION",
		"survey_id BIGINT REFERENCES surveys(id)",
	} {
		if !strings.Contains(pg, want) {
			t.Errorf("postgres DDL missing %q:\n%s", want, pg)
		}
	}
}

func TestInsertRewrite(t *testing.T) {
	tests := []struct {
		name       string
		ins        dialect.Insert
		wantSQLite string
		wantPG     string
	}{
		{
			name:       "plain",
			ins:        dialect.Insert{Table: "surveys", Columns: []string{"name", "source_table_id"}},
			wantSQLite: "INSERT INTO surveys (name, source_table_id) VALUES (?, ?)",
			wantPG:     "INSERT INTO surveys (name, source_table_id) VALUES ($1, $2)",
		},
		{
			name: "ignore with explicit key",
			ins: dialect.Insert{
				Table:       "survey_questions",
				Columns:     []string{"survey_id", "question_key", "question_text"},
				OnConflict:  dialect.ConflictIgnore,
				ConflictKey: []string{"survey_id", "question_key"},
			},
			wantSQLite: "INSERT OR IGNORE INTO survey_questions (survey_id, question_key, question_text) VALUES (?, ?, ?)",
			wantPG:     "INSERT INTO survey_questions (survey_id, question_key, question_text) VALUES ($1, $2, $3) ON CONFLICT (survey_id, question_key) DO NOTHING",
		},
		{
			name: "replace with inferred first-column key",
			ins: dialect.Insert{
				Table:      "sync_tracking",
				Columns:    []string{"source_table_id", "row_count", "status"},
				OnConflict: dialect.ConflictReplace,
			},
			wantSQLite: "INSERT OR REPLACE INTO sync_tracking (source_table_id, row_count, status) VALUES (?, ?, ?)",
			wantPG:     "INSERT INTO sync_tracking (source_table_id, row_count, status) VALUES ($1, $2, $3) ON CONFLICT (source_table_id) DO UPDATE SET row_count = EXCLUDED.row_count, status = EXCLUDED.status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := (dialect.SQLite{}).Rewrite(tt.ins)
			if err != nil {
				t.Fatalf("sqlite rewrite: %v", err)
			}
			if got != tt.wantSQLite {
				t.Errorf("sqlite = %q, want %q", got, tt.wantSQLite)
			}

			got, err = (dialect.Postgres{}).Rewrite(tt.ins)
			if err != nil {
				t.Fatalf("postgres rewrite: %v", err)
			}
			if got != tt.wantPG {
				t.Errorf("postgres = %q, want %q", got, tt.wantPG)
			}
		})
	}
}

func TestUnsupportedUpsertTarget(t *testing.T) {
	bad := []dialect.Insert{
		// No columns at all.
		{Table: "empty", OnConflict: dialect.ConflictIgnore},
		// Declared key is not among the inserted columns.
		{Table: "surveys", Columns: []string{"name"}, OnConflict: dialect.ConflictIgnore, ConflictKey: []string{"source_table_id"}},
		// Replace where the single column is the key: nothing to update.
		{Table: "tags", Columns: []string{"label"}, OnConflict: dialect.ConflictReplace},
	}
	for _, ins := range bad {
		for _, d := range []dialect.Dialect{dialect.SQLite{}, dialect.Postgres{}} {
			if _, err := d.Rewrite(ins); !errors.Is(err, dialect.ErrUnsupportedUpsertTarget) {
				t.Errorf("%s rewrite of %+v: err = %v, want ErrUnsupportedUpsertTarget", d.Name(), ins, err)
			}
		}
	}
}

// TestReplaceEndState verifies upsert=replace end-state on the embedded
// backend: inserting the same logical row twice with one field changed leaves
// exactly one stored row carrying the updated field.
func TestReplaceEndState(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	d := dialect.SQLite{}
	ddl, err := d.Rewrite(dialect.CreateTable{
		Name: "sync_tracking",
		Columns: []dialect.Column{
			{Name: "source_table_id", Type: dialect.TypeText, NotNull: true, Unique: true},
			{Name: "row_count", Type: dialect.TypeInt, NotNull: true},
			{Name: "status", Type: dialect.TypeText, NotNull: true},
		},
	})
	if err != nil {
		t.Fatalf("rewrite ddl: %v", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		t.Fatalf("create table: %v", err)
	}

	upsert, err := d.Rewrite(dialect.Insert{
		Table:      "sync_tracking",
		Columns:    []string{"source_table_id", "row_count", "status"},
		OnConflict: dialect.ConflictReplace,
	})
	if err != nil {
		t.Fatalf("rewrite upsert: %v", err)
	}
	if _, err := db.ExecContext(ctx, upsert, "tab1", 5, "completed"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := db.ExecContext(ctx, upsert, "tab1", 7, "completed"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var n, rows int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(row_count) FROM sync_tracking").Scan(&n, &rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
	if rows != 7 {
		t.Errorf("expected row_count=7, got %d", rows)
	}
}

func TestSQLiteInsertRow(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	d := dialect.SQLite{}
	ddl, _ := d.Rewrite(dialect.CreateTable{
		Name: "surveys",
		Columns: []dialect.Column{
			{Name: "id", Type: dialect.TypeID},
			{Name: "name", Type: dialect.TypeText, NotNull: true},
		},
	})
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		t.Fatalf("create table: %v", err)
	}

	id, err := d.InsertRow(ctx, db, dialect.Insert{Table: "surveys", Columns: []string{"name"}}, "Weekly Pulse")
	if err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id=1, got %d", id)
	}

	_, err = d.InsertRow(ctx, db, dialect.Insert{Table: "surveys", Columns: []string{"name"}, OnConflict: dialect.ConflictIgnore}, "x")
	if err == nil {
		t.Error("expected error for InsertRow with conflict policy")
	}
}
