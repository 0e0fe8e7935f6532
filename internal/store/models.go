// Package store loads and saves report documents. A Loader fronts one
// Persistence backend with an identity-stable Cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dossier/api/internal/report"
)

// ErrNotFound is returned when no report exists under the requested id.
var ErrNotFound = errors.New("report not found")

// Persistence is the external key/document store. Only single-key
// atomicity is assumed.
type Persistence interface {
	GetReport(ctx context.Context, id string) (*report.Document, error)
	PutReport(ctx context.Context, doc *report.Document) error
}

// Lister is implemented by backends that can enumerate stored reports.
type Lister interface {
	ListReports(ctx context.Context, limit int) ([]Summary, error)
}

// ExportRecorder is implemented by backends that keep an export log.
type ExportRecorder interface {
	RecordExport(ctx context.Context, rec ExportRecord) error
}

// Summary is the listing projection of a stored report.
type Summary struct {
	ID              string        `json:"id"`
	CaseNumber      string        `json:"caseNumber"`
	TargetName      string        `json:"targetName"`
	Status          report.Status `json:"status"`
	OverallProgress int           `json:"overallProgress"`
	Revision        int64         `json:"revision"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func summarize(doc *report.Document) Summary {
	return Summary{
		ID:              doc.ID,
		CaseNumber:      doc.CaseNumber,
		TargetName:      doc.TargetName,
		Status:          doc.Status,
		OverallProgress: doc.OverallProgress,
		Revision:        doc.Revision,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// ExportRecord logs one exported artifact.
type ExportRecord struct {
	ReportID    string
	Revision    int64
	ObjectKey   string
	Fingerprint string
	PageCount   int
	CreatedAt   time.Time
}

// PersistenceError reports a failed backend read or write. Callers may
// retry; the cache is left as it was before the failing call.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s report %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
