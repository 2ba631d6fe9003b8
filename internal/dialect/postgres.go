package dialect

import (
	"context"
	"fmt"
	"strings"
)

// Postgres renders statements for the client/server backend (pgx stdlib).
type Postgres struct{}

// Name identifies the backend.
func (Postgres) Name() string { return "postgres" }

// Placeholder returns the numbered PostgreSQL bind marker, 1-based.
func (Postgres) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// BoolLiteral renders booleans as PostgreSQL keywords.
func (Postgres) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Rewrite renders a logical statement as PostgreSQL SQL.
func (d Postgres) Rewrite(stmt Statement) (string, error) {
	switch s := stmt.(type) {
	case CreateTable:
		return d.createTable(s), nil
	case Insert:
		return d.insert(s)
	default:
		return "", fmt.Errorf("dialect: unsupported statement %T", stmt)
	}
}

func (d Postgres) createTable(t CreateTable) string {
	var defs []string
	for _, c := range t.Columns {
		defs = append(defs, columnDef(c, postgresColType(c.Type)))
	}
	for _, u := range t.Uniques {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(u, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

func postgresColType(t ColType) string {
	switch t {
	case TypeID:
		return "BIGSERIAL PRIMARY KEY"
	case TypeInt:
		return "BIGINT"
	case TypeReal:
		return "DOUBLE PRECISION"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d Postgres) insert(ins Insert) (string, error) {
	key, err := conflictKey(ins)
	if err != nil {
		return "", err
	}
	marks := make([]string, len(ins.Columns))
	for i := range ins.Columns {
		marks[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ins.Table, strings.Join(ins.Columns, ", "), strings.Join(marks, ", "))

	switch ins.OnConflict {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(key, ", "))
	case ConflictReplace:
		var sets []string
		for _, c := range nonKeyColumns(ins.Columns, key) {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			strings.Join(key, ", "), strings.Join(sets, ", "))
	}
	return query, nil
}

// InsertRow executes a plain insert with RETURNING id and scans the generated
// primary key; pgx does not support Result.LastInsertId.
func (d Postgres) InsertRow(ctx context.Context, q Querier, ins Insert, args ...any) (int64, error) {
	if ins.OnConflict != ConflictNone {
		return 0, fmt.Errorf("dialect: InsertRow requires a plain insert into %s", ins.Table)
	}
	query, err := d.Rewrite(ins)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", ins.Table, err)
	}
	return id, nil
}
