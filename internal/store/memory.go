package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"dossier/api/internal/report"
)

// MemoryStore is an in-process backend. Documents are stored as JSON so a
// read never aliases a value held by a caller.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
	exports []ExportRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string][]byte)}
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (*report.Document, error) {
	s.mu.RLock()
	raw, ok := s.reports[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var doc report.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

func (s *MemoryStore) PutReport(_ context.Context, doc *report.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	s.mu.Lock()
	s.reports[doc.ID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListReports(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	items := make([]Summary, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetReport(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, summarize(doc))
	}
	sortSummaries(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) RecordExport(_ context.Context, rec ExportRecord) error {
	s.mu.Lock()
	s.exports = append(s.exports, rec)
	s.mu.Unlock()
	return nil
}

// Exports returns a copy of the recorded export log.
func (s *MemoryStore) Exports() []ExportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExportRecord, len(s.exports))
	copy(out, s.exports)
	return out
}
