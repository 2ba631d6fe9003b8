package dialect

import (
	"context"
	"fmt"
	"strings"
)

// SQLite renders statements for the embedded backend (modernc.org/sqlite).
type SQLite struct{}

// Name identifies the backend.
func (SQLite) Name() string { return "sqlite" }

// Placeholder returns the SQLite bind marker, which is positional "?".
func (SQLite) Placeholder(int) string { return "?" }

// BoolLiteral renders booleans as the integers SQLite stores them as.
func (SQLite) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Rewrite renders a logical statement as SQLite SQL.
func (d SQLite) Rewrite(stmt Statement) (string, error) {
	switch s := stmt.(type) {
	case CreateTable:
		return d.createTable(s), nil
	case Insert:
		return d.insert(s)
	default:
		return "", fmt.Errorf("dialect: unsupported statement %T", stmt)
	}
}

func (d SQLite) createTable(t CreateTable) string {
	var defs []string
	for _, c := range t.Columns {
		defs = append(defs, columnDef(c, sqliteColType(c.Type)))
	}
	for _, u := range t.Uniques {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(u, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

func sqliteColType(t ColType) string {
	switch t {
	case TypeID:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case TypeInt:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d SQLite) insert(ins Insert) (string, error) {
	// The key is unused in the rendered SQL (OR IGNORE/REPLACE act on any
	// violated unique constraint) but inference is validated anyway so both
	// backends reject the same malformed statements.
	if _, err := conflictKey(ins); err != nil {
		return "", err
	}
	verb := "INSERT"
	switch ins.OnConflict {
	case ConflictIgnore:
		verb = "INSERT OR IGNORE"
	case ConflictReplace:
		verb = "INSERT OR REPLACE"
	}
	marks := make([]string, len(ins.Columns))
	for i := range ins.Columns {
		marks[i] = "?"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, ins.Table, strings.Join(ins.Columns, ", "), strings.Join(marks, ", ")), nil
}

// InsertRow executes a plain insert and returns the driver's last inserted
// rowid as the generated primary key.
func (d SQLite) InsertRow(ctx context.Context, q Querier, ins Insert, args ...any) (int64, error) {
	if ins.OnConflict != ConflictNone {
		return 0, fmt.Errorf("dialect: InsertRow requires a plain insert into %s", ins.Table)
	}
	query, err := d.Rewrite(ins)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", ins.Table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id for %s: %w", ins.Table, err)
	}
	return id, nil
}

// columnDef renders one column definition; shared by both backends since only
// the type keyword differs.
func columnDef(c Column, colType string) string {
	def := c.Name + " " + colType
	if c.Type == TypeID {
		return def
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Unique {
		def += " UNIQUE"
	}
	if c.References != "" {
		def += " REFERENCES " + c.References
	}
	return def
}
