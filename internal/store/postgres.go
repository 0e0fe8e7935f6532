package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/api/internal/report"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*report.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM reports WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var doc report.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

// PutReport upserts the full document. Concurrent writers to one id are
// last-writer-wins.
func (s *PostgresStore) PutReport(ctx context.Context, doc *report.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, case_number, target_name, status, classification, overall_progress, revision, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET case_number=EXCLUDED.case_number,
			target_name=EXCLUDED.target_name,
			status=EXCLUDED.status,
			classification=EXCLUDED.classification,
			overall_progress=EXCLUDED.overall_progress,
			revision=EXCLUDED.revision,
			document=EXCLUDED.document,
			updated_at=EXCLUDED.updated_at
	`, doc.ID, doc.CaseNumber, doc.TargetName, string(doc.Status), doc.Classification, doc.OverallProgress, doc.Revision, raw, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_number, target_name, status, overall_progress, revision, updated_at
		FROM reports
		ORDER BY updated_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Summary, 0)
	for rows.Next() {
		var item Summary
		var status string
		if err := rows.Scan(&item.ID, &item.CaseNumber, &item.TargetName, &status, &item.OverallProgress, &item.Revision, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		item.Status = report.Status(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RecordExport(ctx context.Context, rec ExportRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_exports (report_id, revision, object_key, fingerprint, page_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ReportID, rec.Revision, rec.ObjectKey, rec.Fingerprint, rec.PageCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}
