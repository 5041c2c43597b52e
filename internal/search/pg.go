package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Pg implements Searcher over Postgres as a fallback. Card titles and
// descriptions are short free text, so a trigram-friendly ILIKE match
// is enough here.
type Pg struct {
	db *sql.DB
}

// NewPg creates a Postgres card searcher.
func NewPg(db *sql.DB) *Pg {
	return &Pg{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *Pg) Healthy() bool {
	return true
}

// Search matches cards on the given project by title or description.
func (p *Pg) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + q.Text + "%"
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM cards cd
		JOIN board_columns c ON c.id = cd.column_id
		WHERE c.project_id = $1
		  AND (cd.title ILIKE $2 OR cd.description ILIKE $2)
	`, q.ProjectID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT cd.id, cd.title, coalesce(cd.description, ''), c.id, c.title
		FROM cards cd
		JOIN board_columns c ON c.id = cd.column_id
		WHERE c.project_id = $1
		  AND (cd.title ILIKE $2 OR cd.description ILIKE $2)
		ORDER BY c.position ASC, cd.position ASC, cd.id ASC
		LIMIT $3
	`, q.ProjectID, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.ColumnID, &r.ColumnTitle); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadProjectRecords returns all cards on a project for reindexing.
func (p *Pg) LoadProjectRecords(ctx context.Context, projectID string) ([]CardRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT cd.id, cd.title, coalesce(cd.description, ''), c.id, c.title, c.project_id
		FROM cards cd
		JOIN board_columns c ON c.id = cd.column_id
		WHERE c.project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	records := make([]CardRecord, 0)
	for rows.Next() {
		var rec CardRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.ColumnID, &rec.ColumnTitle, &rec.ProjectID); err != nil {
			return nil, fmt.Errorf("scan card record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}

	return records, nil
}
