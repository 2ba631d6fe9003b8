// Package seed loads demo raw tabs for local development, standing in for
// the external spreadsheet fetcher.
package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/formsync/formsync/internal/dialect"
)

type tabDef struct {
	id      string
	title   string
	updated string
	// rows are stored verbatim so the demo data keeps its column order.
	rows []string
}

var demoTabs = []tabDef{
	{
		id:      "demo-week1",
		title:   "Week 1 Feedback",
		updated: "2024-03-01T10:00:00.000Z",
		rows: []string{
			`{"Date":"2024-03-01 09:15:00","Browser":"Firefox","Device":"Desktop","How useful was the session?":"5","Would you recommend it?":"yes","Comments":"Great pace"}`,
			`{"Date":"2024-03-01 11:30:00","Browser":"Chrome","Device":"Mobile","How useful was the session?":"3","Would you recommend it?":"no","Comments":""}`,
			`{"Date":"2024-03-01 17:45:00","Browser":"Chrome","Device":"Mobile","How useful was the session?":"4","Would you recommend it?":"yes","Comments":"More examples please"}`,
		},
	},
	{
		id:      "demo-week2",
		title:   "Week 2 Feedback",
		updated: "2024-03-08T10:00:00.000Z",
		rows: []string{
			`{"Date":"2024-03-08 09:05:00","Browser":"Safari","Device":"Tablet","How useful was the session?":"4","Would you recommend it?":"yes","Comments":""}`,
			`{"Date":"2024-03-08 14:20:00","Browser":"Firefox","Device":"Desktop","How useful was the session?":"2","Would you recommend it?":"no","Comments":"Too fast"}`,
		},
	},
	{
		id:      "demo-answers",
		title:   "Quiz Answer Sheet",
		updated: "2024-03-01T10:00:00.000Z",
		rows: []string{
			`{"Question":"Q1","Answer":"B","Option A":"Berlin","Option B":"Paris"}`,
		},
	},
}

// Seed inserts the demo raw tabs if the raw store is empty. It is
// idempotent — any existing tab suppresses the whole load.
func Seed(ctx context.Context, db *sql.DB, d dialect.Dialect) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_tabs`).Scan(&count); err != nil {
		return fmt.Errorf("count raw tabs: %w", err)
	}
	if count > 0 {
		return nil
	}

	tabInsert, err := d.Rewrite(dialect.Insert{
		Table:   "raw_tabs",
		Columns: []string{"id", "title", "source_updated_at", "fetched_at"},
	})
	if err != nil {
		return err
	}
	rowInsert, err := d.Rewrite(dialect.Insert{
		Table:   "raw_rows",
		Columns: []string{"tab_id", "row_number", "fields", "fetched_at"},
	})
	if err != nil {
		return err
	}

	for _, tab := range demoTabs {
		if _, err := db.ExecContext(ctx, tabInsert, tab.id, tab.title, tab.updated, tab.updated); err != nil {
			return fmt.Errorf("insert demo tab %s: %w", tab.id, err)
		}
		for i, fields := range tab.rows {
			if _, err := db.ExecContext(ctx, rowInsert, tab.id, i+1, fields, tab.updated); err != nil {
				return fmt.Errorf("insert demo row %d of %s: %w", i+1, tab.id, err)
			}
		}
	}
	return nil
}
