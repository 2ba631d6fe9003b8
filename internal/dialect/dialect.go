// Package dialect renders logical schema and DML statements as SQL for the
// two supported backends. Callers build statements from the small AST here
// (CreateTable, Insert) instead of rewriting already-generated SQL text, so
// placeholder style, identity columns, boolean literals and upsert syntax are
// decided in exactly one place.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnsupportedUpsertTarget is returned when an Insert carries a conflict
// policy but the adapter cannot infer a usable conflict key (and none was
// given). It signals a programming error in the calling statement, not a
// runtime condition worth retrying.
var ErrUnsupportedUpsertTarget = errors.New("dialect: unsupported upsert target")

// Querier is the subset of database/sql needed to execute rendered
// statements. Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Statement is a logical statement the adapter can render.
type Statement interface {
	isStatement()
}

// ColType is the logical column type of a CreateTable column.
type ColType int

const (
	// TypeID is an auto-increment integer primary key.
	TypeID ColType = iota
	TypeText
	TypeInt
	TypeReal
	TypeBool
)

// Column is one column of a logical CreateTable.
type Column struct {
	Name       string
	Type       ColType
	NotNull    bool
	Unique     bool
	References string // "table(column)", optional
}

// CreateTable declares a table with an optional auto-increment primary key
// (a column of TypeID) and table-level unique constraints.
type CreateTable struct {
	Name    string
	Columns []Column
	Uniques [][]string
}

func (CreateTable) isStatement() {}

// ConflictPolicy selects the upsert behavior of an Insert.
type ConflictPolicy int

const (
	// ConflictNone is a plain insert; a constraint violation is an error.
	ConflictNone ConflictPolicy = iota
	// ConflictIgnore drops the new row when the conflict key already exists.
	ConflictIgnore
	// ConflictReplace updates all non-key columns from the new row when the
	// conflict key already exists.
	ConflictReplace
)

// Insert declares an insert of Columns into Table with positional parameters
// in column order. ConflictKey names the unique key the policy applies to;
// when empty it is inferred as a column literally named "id", else the first
// listed column.
type Insert struct {
	Table       string
	Columns     []string
	OnConflict  ConflictPolicy
	ConflictKey []string
}

func (Insert) isStatement() {}

// Dialect translates logical statements into backend SQL.
type Dialect interface {
	// Name identifies the backend ("sqlite" or "postgres").
	Name() string

	// Placeholder returns the bind marker for the i-th parameter, 1-based.
	Placeholder(i int) string

	// BoolLiteral renders a boolean literal for use in SQL text.
	BoolLiteral(b bool) string

	// Rewrite renders a logical statement as backend SQL. Inserts with a
	// conflict policy whose key cannot be inferred fail with
	// ErrUnsupportedUpsertTarget.
	Rewrite(stmt Statement) (string, error)

	// InsertRow executes a plain Insert (ConflictNone) and returns the
	// generated primary key, abstracting driver LastInsertId vs RETURNING id.
	InsertRow(ctx context.Context, q Querier, ins Insert, args ...any) (int64, error)
}

// For returns the Dialect for a database driver name.
func For(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return SQLite{}, nil
	case "postgres", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("dialect: unknown driver %q", driver)
	}
}

// conflictKey resolves the conflict key for an upsert, applying the default
// inference when none is declared.
func conflictKey(ins Insert) ([]string, error) {
	if ins.OnConflict == ConflictNone {
		return nil, nil
	}
	if len(ins.Columns) == 0 {
		return nil, fmt.Errorf("%w: insert into %s has no columns", ErrUnsupportedUpsertTarget, ins.Table)
	}
	key := ins.ConflictKey
	if len(key) == 0 {
		for _, c := range ins.Columns {
			if c == "id" {
				key = []string{"id"}
				break
			}
		}
	}
	if len(key) == 0 {
		key = []string{ins.Columns[0]}
	}
	for _, k := range key {
		if !containsColumn(ins.Columns, k) {
			return nil, fmt.Errorf("%w: conflict key %q is not an inserted column of %s", ErrUnsupportedUpsertTarget, k, ins.Table)
		}
	}
	if ins.OnConflict == ConflictReplace && len(nonKeyColumns(ins.Columns, key)) == 0 {
		return nil, fmt.Errorf("%w: replace into %s leaves no columns to update", ErrUnsupportedUpsertTarget, ins.Table)
	}
	return key, nil
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

func nonKeyColumns(cols, key []string) []string {
	var out []string
	for _, c := range cols {
		if !containsColumn(key, c) {
			out = append(out, c)
		}
	}
	return out
}
