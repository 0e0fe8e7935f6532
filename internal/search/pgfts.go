package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher over the reports table's generated tsvector
// column. It is the fallback when Meilisearch is down or not configured.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the reports are too.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "r.fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if q.Status != "" {
		where += " AND r.status = $2"
		args = append(args, string(q.Status))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM reports r WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, r.case_number, r.target_name, r.status,
			ts_headline('simple', r.target_name || ' ' || r.case_number, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM reports r
		WHERE %s
		ORDER BY ts_rank(r.fts, plainto_tsquery('simple', $1)) DESC, r.updated_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.CaseNumber, &r.TargetName, &r.Status, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
