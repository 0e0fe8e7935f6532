package search

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"dossier/api/internal/report"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search. Either side may be nil.
type Service struct {
	meili    *Meili
	fallback Searcher
	log      logrus.FieldLogger
	pending  sync.WaitGroup
}

func NewService(meili *Meili, fallback Searcher, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{meili: meili, fallback: fallback, log: log}
}

// Search never fails; backend errors degrade to an empty response.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("search: meilisearch error, falling back")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.log.WithError(err).Warn("search: fallback error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// ReportSaved indexes the saved snapshot in the background.
func (s *Service) ReportSaved(_ context.Context, doc *report.Document) {
	s.IndexReport(ToRecord(doc))
}

// IndexReport indexes a report record (fire-and-forget to Meilisearch).
func (s *Service) IndexReport(rec ReportRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.IndexReport(rec); err != nil {
			s.log.WithFields(logrus.Fields{"report_id": rec.ID}).WithError(err).Warn("search: index report")
		}
	}()
}

// ReindexAll pushes every given report to Meilisearch.
func (s *Service) ReindexAll(docs []*report.Document) {
	if s.meili == nil || !s.meili.Healthy() || len(docs) == 0 {
		return
	}
	records := make([]ReportRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, ToRecord(doc))
	}
	if err := s.meili.IndexReports(records); err != nil {
		s.log.WithError(err).Warn("search: reindex reports")
	}
}

// Wait blocks until background index calls have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Close waits for background work and stops the Meilisearch health loop.
func (s *Service) Close() {
	s.Wait()
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
