package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"dossier/api/internal/artifact"
	"dossier/api/internal/collector"
	"dossier/api/internal/email"
	"dossier/api/internal/ingest"
	"dossier/api/internal/journal"
	"dossier/api/internal/logging"
	"dossier/api/internal/metrics"
	"dossier/api/internal/render"
	"dossier/api/internal/report"
	"dossier/api/internal/store"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

// fakeJournal records one entry per saved revision.
type fakeJournal struct {
	mu      sync.Mutex
	entries map[string][]journal.Entry
	docs    map[string]*report.Document
	tags    []string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{entries: map[string][]journal.Entry{}, docs: map[string]*report.Document{}}
}

func (f *fakeJournal) ReportSaved(_ context.Context, doc *report.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := fmt.Sprintf("%s-r%d", doc.ID, doc.Revision)
	entry := journal.Entry{Hash: hash, Revision: doc.Revision, Message: "save", CreatedAt: fixedNow}
	f.entries[doc.ID] = append([]journal.Entry{entry}, f.entries[doc.ID]...)
	f.docs[hash] = doc
}

func (f *fakeJournal) History(reportID string, limit int) ([]journal.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.entries[reportID]
	if !ok {
		return nil, journal.ErrNoHistory
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]journal.Entry{}, entries...), nil
}

func (f *fakeJournal) Snapshot(_, hash string) (*report.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[hash]
	if !ok {
		return nil, fmt.Errorf("resolve hash %s: %w", hash, plumbing.ErrReferenceNotFound)
	}
	return doc, nil
}

func (f *fakeJournal) Tag(_, hash, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, hash+"="+name)
	return nil
}

type fakeArtifacts struct {
	mu    sync.Mutex
	metas []artifact.Metadata
	err   error
}

func (f *fakeArtifacts) Put(_ context.Context, filename, _ string, data []byte, meta artifact.Metadata) (artifact.Object, error) {
	if f.err != nil {
		return artifact.Object{}, f.err
	}
	f.mu.Lock()
	f.metas = append(f.metas, meta)
	f.mu.Unlock()
	return artifact.Object{Bucket: "reports", Key: artifact.Key(meta.ReportID, filename), Size: int64(len(data))}, nil
}

func (f *fakeArtifacts) PresignedURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://files.example.com/" + key + "?sig=x", nil
}

type fakeMailer struct {
	mu   sync.Mutex
	to   [][]string
	sent []email.ExportReadyData
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendExportReady(to []string, data email.ExportReadyData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.sent = append(f.sent, data)
	return nil
}

// failingBackend reads through to a memory store but refuses writes once
// failWrites is set.
type failingBackend struct {
	*store.MemoryStore
	mu         sync.Mutex
	failWrites bool
}

func (f *failingBackend) PutReport(ctx context.Context, doc *report.Document) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.PutReport(ctx, doc)
}

type harness struct {
	svc       *Service
	handler   http.Handler
	backend   *failingBackend
	journal   *fakeJournal
	artifacts *fakeArtifacts
	mailer    *fakeMailer
	metrics   *metrics.Metrics

	hookMu   sync.Mutex
	saveHook func(*report.Document)
}

// onSave runs fn after every successful save from now on.
func (h *harness) onSave(fn func(*report.Document)) {
	h.hookMu.Lock()
	h.saveHook = fn
	h.hookMu.Unlock()
}

func (h *harness) reportSaved(_ context.Context, doc *report.Document) {
	h.hookMu.Lock()
	fn := h.saveHook
	h.hookMu.Unlock()
	if fn != nil {
		fn(doc)
	}
}

var legalResult = collector.Result{
	Patch:   report.Patch{"criminalRecords": []any{"Pending appeal, Travis County"}},
	Sources: []report.BibliographySource{{Source: "County court registry", Reliability: report.ReliabilityHigh}},
}

func newHarness(t *testing.T, col collector.Collector) *harness {
	t.Helper()
	log := logging.Discard()
	now := func() time.Time { return fixedNow }

	h := &harness{
		backend:   &failingBackend{MemoryStore: store.NewMemoryStore()},
		journal:   newFakeJournal(),
		artifacts: &fakeArtifacts{},
		mailer:    &fakeMailer{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	loader := store.NewLoader(h.backend, store.NewCache(),
		store.WithClock(now),
		store.WithLogger(log),
		store.WithObservers(h.journal, store.SaveObserverFunc(h.reportSaved)),
	)
	transformer, err := ingest.NewTransformer(log, ingest.WithClock(now))
	require.NoError(t, err)
	renderer, err := render.New(render.WithLogger(log))
	require.NoError(t, err)

	h.svc = New(Deps{
		Loader:      loader,
		Transformer: transformer,
		Renderer:    renderer,
		Collector:   col,
		Journal:     h.journal,
		Artifacts:   h.artifacts,
		Mailer:      h.mailer,
		Pinger:      fakePinger{},
		Metrics:     h.metrics,
		Log:         log,
		Now:         now,
	})
	h.handler = NewHTTPServer(h.svc, "*", log).Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

type viewBody struct {
	Report   report.Document                     `json:"report"`
	Sections map[report.SectionID]map[string]any `json:"sections"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (h *harness) create(t *testing.T, name string) report.Document {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/reports", "analyst", map[string]any{"targetName": name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[viewBody](t, rr).Report
}
