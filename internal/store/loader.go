package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dossier/api/internal/metrics"
	"dossier/api/internal/report"
	"dossier/api/internal/util"
)

// SaveObserver is told about every successfully saved snapshot. Observers
// must treat doc as read-only.
type SaveObserver interface {
	ReportSaved(ctx context.Context, doc *report.Document)
}

type SaveObserverFunc func(ctx context.Context, doc *report.Document)

func (f SaveObserverFunc) ReportSaved(ctx context.Context, doc *report.Document) {
	f(ctx, doc)
}

type LoaderOption func(*Loader)

func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

func WithLogger(log logrus.FieldLogger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

func WithObservers(observers ...SaveObserver) LoaderOption {
	return func(l *Loader) { l.observers = append(l.observers, observers...) }
}

// WithIDs overrides report id and case number generation.
func WithIDs(newID func() string, newCase func(time.Time) string) LoaderOption {
	return func(l *Loader) {
		l.newID = newID
		l.newCase = newCase
	}
}

// Loader implements create/get/save over a Persistence backend. Reads are
// memoized in the Cache: within one Loader, repeat reads of an id return the
// same *report.Document until a save or invalidation replaces it.
type Loader struct {
	backend   Persistence
	cache     *Cache
	now       func() time.Time
	newID     func() string
	newCase   func(time.Time) string
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	observers []SaveObserver

	locks sync.Map // id -> *sync.Mutex
}

func NewLoader(backend Persistence, cache *Cache, opts ...LoaderOption) *Loader {
	if cache == nil {
		cache = NewCache()
	}
	l := &Loader{
		backend: backend,
		cache:   cache,
		now:     time.Now,
		newID:   func() string { return util.NewID("") },
		newCase: util.NewCaseNumber,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Cache() *Cache {
	return l.cache
}

func (l *Loader) Backend() Persistence {
	return l.backend
}

// Get returns the document for id, reading through to the backend on a
// cache miss. A missing report yields ErrNotFound; any other backend
// failure yields a *PersistenceError.
func (l *Loader) Get(ctx context.Context, id string) (*report.Document, error) {
	if doc, ok := l.cache.Get(id); ok {
		l.metrics.CacheHit()
		return doc, nil
	}
	l.metrics.CacheMiss()

	doc, err := l.backend.GetReport(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		l.log.WithFields(logrus.Fields{"report_id": id}).WithError(err).Warn("store: read failed")
		return nil, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	return l.cache.LoadOrStore(doc), nil
}

// Create opens an empty draft for targetName and persists it.
func (l *Loader) Create(ctx context.Context, targetName string, targetEmail *string) (*report.Document, error) {
	name := strings.TrimSpace(targetName)
	if name == "" {
		name = "Unknown Subject"
	}
	now := l.now().UTC()
	doc := report.New(l.newID(), l.newCase(now), name, targetEmail, now)
	return l.Save(ctx, doc)
}

// Save persists a snapshot of doc with the next revision and caches it. On
// success the stored snapshot is returned and becomes what Get yields. On
// failure a *PersistenceError is returned and the cache is unchanged.
// Concurrent saves of one id are serialized and the last one wins.
func (l *Loader) Save(ctx context.Context, doc *report.Document) (*report.Document, error) {
	if doc == nil || doc.ID == "" {
		return nil, &PersistenceError{Op: "save", Err: errors.New("document has no id")}
	}
	unlock := l.lock(doc.ID)
	defer unlock()

	snapshot := doc.Clone()
	snapshot.Normalize()
	snapshot.Revision = doc.Revision + 1
	latest, err := l.latestRevision(ctx, doc.ID)
	if err != nil {
		l.metrics.IncrementSaveFailures()
		l.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Error("store: save failed reading current revision")
		return nil, &PersistenceError{Op: "save", ID: doc.ID, Err: err}
	}
	if latest >= snapshot.Revision {
		snapshot.Revision = latest + 1
	}

	if err := l.backend.PutReport(ctx, snapshot); err != nil {
		l.metrics.IncrementSaveFailures()
		l.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Error("store: save failed")
		return nil, &PersistenceError{Op: "save", ID: doc.ID, Err: err}
	}
	l.cache.Put(snapshot)

	for _, o := range l.observers {
		o.ReportSaved(ctx, snapshot)
	}
	return snapshot, nil
}

// latestRevision is the newest revision of id known to the cache, or to the
// backend when the cache has dropped it. Zero means the report is new.
func (l *Loader) latestRevision(ctx context.Context, id string) (int64, error) {
	if cached, ok := l.cache.Get(id); ok {
		return cached.Revision, nil
	}
	stored, err := l.backend.GetReport(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stored.Revision, nil
}

// ApplySectionUpdate returns a copy of doc with patch merged into section
// id. Neither doc nor the cache is touched; call Save to persist.
func (l *Loader) ApplySectionUpdate(doc *report.Document, id report.SectionID, patch report.Patch) (*report.Document, error) {
	return report.ApplySectionUpdate(doc, id, patch, l.now().UTC())
}

// List enumerates stored reports when the backend supports it.
func (l *Loader) List(ctx context.Context, limit int) ([]Summary, error) {
	lister, ok := l.backend.(Lister)
	if !ok {
		return []Summary{}, nil
	}
	items, err := lister.ListReports(ctx, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return items, nil
}

// RecordExport appends to the backend's export log when it keeps one.
func (l *Loader) RecordExport(ctx context.Context, rec ExportRecord) error {
	recorder, ok := l.backend.(ExportRecorder)
	if !ok {
		return nil
	}
	if err := recorder.RecordExport(ctx, rec); err != nil {
		return &PersistenceError{Op: "record export", ID: rec.ReportID, Err: err}
	}
	return nil
}

func (l *Loader) lock(id string) func() {
	v, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
