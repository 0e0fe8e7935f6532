package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dossier/api/internal/artifact"
	"dossier/api/internal/collector"
	"dossier/api/internal/email"
	"dossier/api/internal/ingest"
	"dossier/api/internal/journal"
	"dossier/api/internal/metrics"
	"dossier/api/internal/rbac"
	"dossier/api/internal/render"
	"dossier/api/internal/report"
	"dossier/api/internal/search"
	"dossier/api/internal/store"
	"dossier/api/internal/util"
	"dossier/api/internal/workflow"
)

type historyJournal interface {
	History(reportID string, limit int) ([]journal.Entry, error)
	Snapshot(reportID, hash string) (*report.Document, error)
	Tag(reportID, hash, name string) error
}

type reportSearcher interface {
	Search(q search.Query) search.Response
}

type artifactStore interface {
	Put(ctx context.Context, filename, contentType string, data []byte, meta artifact.Metadata) (artifact.Object, error)
	PresignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
}

type notifier interface {
	IsConfigured() bool
	SendExportReady(to []string, data email.ExportReadyData) error
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the collaborators of a Service. Loader, Transformer and Renderer
// are required; the rest may be nil and their features are then off.
type Deps struct {
	Loader         *store.Loader
	Transformer    *ingest.Transformer
	Renderer       *render.Renderer
	Collector      collector.Collector
	Journal        historyJournal
	Search         reportSearcher
	Artifacts      artifactStore
	Mailer         notifier
	Pinger         Pinger
	Metrics        *metrics.Metrics
	Log            logrus.FieldLogger
	Now            func() time.Time
	RefreshTimeout time.Duration
	LinkTTL        time.Duration
	// MaxViews bounds the open views kept in memory; idle views beyond it
	// are dropped, least recently used first. Zero means 1000.
	MaxViews int
}

type Service struct {
	loader         *store.Loader
	transformer    *ingest.Transformer
	renderer       *render.Renderer
	collector      collector.Collector
	journal        historyJournal
	search         reportSearcher
	artifacts      artifactStore
	mailer         notifier
	pinger         Pinger
	metrics        *metrics.Metrics
	log            logrus.FieldLogger
	now            func() time.Time
	refreshTimeout time.Duration
	linkTTL        time.Duration
	maxViews       int

	viewsMu  sync.Mutex
	views    map[string]*workflow.View
	lastUsed map[string]time.Time
	// reportLocks serializes opening and replacing the view of one report.
	reportLocks sync.Map
}

func New(deps Deps) *Service {
	s := &Service{
		loader:         deps.Loader,
		transformer:    deps.Transformer,
		renderer:       deps.Renderer,
		collector:      deps.Collector,
		journal:        deps.Journal,
		search:         deps.Search,
		artifacts:      deps.Artifacts,
		mailer:         deps.Mailer,
		pinger:         deps.Pinger,
		metrics:        deps.Metrics,
		log:            deps.Log,
		now:            deps.Now,
		refreshTimeout: deps.RefreshTimeout,
		linkTTL:        deps.LinkTTL,
		maxViews:       deps.MaxViews,
		views:          make(map[string]*workflow.View),
		lastUsed:       make(map[string]time.Time),
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.linkTTL <= 0 {
		s.linkTTL = 24 * time.Hour
	}
	if s.maxViews <= 0 {
		s.maxViews = 1000
	}
	return s
}

// ReportView is a document together with the editorial state of its sections.
type ReportView struct {
	Document *report.Document                           `json:"report"`
	Sections map[report.SectionID]workflow.SectionState `json:"sections"`
}

type CreateReportInput struct {
	TargetName  string  `json:"targetName"`
	TargetEmail *string `json:"targetEmail"`
}

type ExportInput struct {
	Format string   `json:"format"`
	Notify []string `json:"notify"`
}

type ExportResult struct {
	Result      *render.Result
	ObjectKey   string
	DownloadURL string
}

type RefreshResult struct {
	Section  report.SectionID      `json:"section"`
	Joined   bool                  `json:"joined"`
	Status   report.AgentStatus    `json:"status"`
	Done     bool                  `json:"done"`
	Error    string                `json:"error,omitempty"`
	Warning  string                `json:"warning,omitempty"`
	State    workflow.SectionState `json:"state"`
	Document *report.Document      `json:"report,omitempty"`
}

type SectionAction string

const (
	ToggleApproval SectionAction = "approve"
	ToggleOpen     SectionAction = "open"
	ToggleEdit     SectionAction = "edit"
)

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.Ping(ctx)
}

func (s *Service) CreateReport(ctx context.Context, input CreateReportInput) (ReportView, error) {
	doc, err := s.loader.Create(ctx, input.TargetName, report.NormalizeScalar(input.TargetEmail))
	if err != nil {
		return ReportView{}, err
	}
	s.log.WithFields(logrus.Fields{"report_id": doc.ID, "case_number": doc.CaseNumber}).Info("app: report created")
	v := s.open(doc)
	return ReportView{Document: v.Document(), Sections: v.States()}, nil
}

func (s *Service) GetReport(ctx context.Context, id string) (ReportView, error) {
	v, err := s.view(ctx, id)
	if err != nil {
		return ReportView{}, err
	}
	return ReportView{Document: v.Document(), Sections: v.States()}, nil
}

func (s *Service) ListReports(ctx context.Context, limit int) ([]store.Summary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.loader.List(ctx, limit)
}

// IngestReport transforms a collection agent payload into a completed
// report and stores it under reportID, or under a new id when empty. An
// open view of the same id is closed before the save, so none of its
// refreshes or edits can land on top of the ingested data.
func (s *Service) IngestReport(ctx context.Context, body []byte, reportID string) (ReportView, error) {
	if reportID == "" {
		reportID = util.NewID("")
	}
	unlock := s.lockReport(reportID)
	defer unlock()

	doc := s.transformer.TransformJSON(body, reportID)
	s.close(reportID, "report replaced by ingest")
	if prev, err := s.loader.Get(ctx, reportID); err == nil {
		doc.Revision = prev.Revision
		doc.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return ReportView{}, err
	}

	saved, err := s.loader.Save(ctx, doc)
	if err != nil {
		return ReportView{}, err
	}
	s.metrics.IncrementIngested()
	v := s.open(saved)
	return ReportView{Document: v.Document(), Sections: v.States()}, nil
}

func (s *Service) ToggleSection(ctx context.Context, id string, section report.SectionID, action SectionAction) (workflow.SectionState, error) {
	var toggle func(*workflow.View) (workflow.SectionState, error)
	switch action {
	case ToggleApproval:
		toggle = func(v *workflow.View) (workflow.SectionState, error) { return v.ToggleApproval(section) }
	case ToggleOpen:
		toggle = func(v *workflow.View) (workflow.SectionState, error) { return v.ToggleOpen(section) }
	case ToggleEdit:
		toggle = func(v *workflow.View) (workflow.SectionState, error) { return v.ToggleEdit(section) }
	default:
		return workflow.SectionState{}, domainError(http.StatusBadRequest, "INVALID_ACTION", "Unknown section action", map[string]any{"action": action})
	}
	var state workflow.SectionState
	err := s.withView(ctx, id, func(v *workflow.View) error {
		var err error
		state, err = toggle(v)
		return err
	})
	return state, err
}

// UpdateSection commits an edit of a section that is in edit mode.
func (s *Service) UpdateSection(ctx context.Context, id string, section report.SectionID, patch report.Patch) (ReportView, error) {
	var view ReportView
	err := s.withView(ctx, id, func(v *workflow.View) error {
		if _, err := v.CommitEdit(ctx, section, patch); err != nil {
			return err
		}
		view = ReportView{Document: v.Document(), Sections: v.States()}
		return nil
	})
	return view, err
}

// RefreshSection starts or joins a refresh of section. With wait set it
// blocks until the round-trip resolves or ctx ends; otherwise it returns
// as soon as the refresh is running.
func (s *Service) RefreshSection(ctx context.Context, id string, section report.SectionID, wait bool) (RefreshResult, error) {
	var (
		v      *workflow.View
		ticket *workflow.Ticket
	)
	err := s.withView(ctx, id, func(open *workflow.View) error {
		var err error
		v = open
		ticket, err = open.Refresh(ctx, section)
		return err
	})
	if err != nil {
		return RefreshResult{}, err
	}
	result := RefreshResult{Section: section, Joined: ticket.Joined, Status: ticket.Status}
	if wait {
		outcome, err := ticket.Wait(ctx)
		if err != nil {
			return RefreshResult{}, err
		}
		result.Done = true
		result.Status = outcome.Status
		if outcome.Err != nil {
			result.Error = outcome.Err.Error()
		}
		if outcome.SaveErr != nil {
			result.Warning = outcome.SaveErr.Error()
		}
		if !outcome.Stale {
			result.Document = outcome.Document
		}
	}
	state, err := v.State(section)
	if err != nil {
		return RefreshResult{}, err
	}
	result.State = state
	return result, nil
}

func (s *Service) ExpireSection(ctx context.Context, id string, section report.SectionID, reason string) (bool, error) {
	if !section.Valid() {
		return false, fmt.Errorf("%w: %s", report.ErrUnknownSection, section)
	}
	v, err := s.view(ctx, id)
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = "expired by request"
	}
	return v.Expire(section, reason), nil
}

// ExportReport renders the current document. When an artifact store is
// configured the file is uploaded, logged and a download link is returned;
// recipients in input.Notify then get an email with that link.
func (s *Service) ExportReport(ctx context.Context, id string, input ExportInput) (ExportResult, error) {
	format, err := render.ParseFormat(input.Format)
	if err != nil {
		return ExportResult{}, err
	}
	v, err := s.view(ctx, id)
	if err != nil {
		return ExportResult{}, err
	}
	doc := v.Document()
	result, err := s.renderer.Render(ctx, doc, format, time.Time{})
	if err != nil {
		return ExportResult{}, err
	}
	out := ExportResult{Result: result}
	s.tagExport(doc, format)
	if s.artifacts == nil {
		return out, nil
	}

	obj, err := s.artifacts.Put(ctx, result.Filename, result.MimeType, result.Data, artifact.Metadata{
		ReportID:    doc.ID,
		CaseNumber:  doc.CaseNumber,
		Revision:    doc.Revision,
		Fingerprint: result.Fingerprint,
		PageCount:   result.Pages,
	})
	if err != nil {
		return ExportResult{}, err
	}
	out.ObjectKey = obj.Key

	if err := s.loader.RecordExport(ctx, store.ExportRecord{
		ReportID:    doc.ID,
		Revision:    doc.Revision,
		ObjectKey:   obj.Key,
		Fingerprint: result.Fingerprint,
		PageCount:   result.Pages,
		CreatedAt:   s.now().UTC(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Warn("app: export log write failed")
	}

	url, err := s.artifacts.PresignedURL(ctx, obj.Key, result.Filename, s.linkTTL)
	if err != nil {
		s.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Warn("app: presign failed")
		return out, nil
	}
	out.DownloadURL = url

	if len(input.Notify) > 0 && s.mailer != nil && s.mailer.IsConfigured() {
		err := s.mailer.SendExportReady(input.Notify, email.ExportReadyData{
			CaseNumber:  doc.CaseNumber,
			TargetName:  doc.TargetName,
			Format:      string(format),
			Filename:    result.Filename,
			Pages:       result.Pages,
			DownloadURL: url,
			ExpiresAt:   s.now().Add(s.linkTTL),
		})
		if err != nil {
			s.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Warn("app: export notice failed")
		}
	}
	return out, nil
}

// tagExport names the journal snapshot an export was rendered from.
func (s *Service) tagExport(doc *report.Document, format render.Format) {
	if s.journal == nil {
		return
	}
	entries, err := s.journal.History(doc.ID, 1)
	if err != nil || len(entries) == 0 || entries[0].Revision != doc.Revision {
		return
	}
	name := fmt.Sprintf("export-r%d-%s", doc.Revision, format)
	if err := s.journal.Tag(doc.ID, entries[0].Hash, name); err != nil {
		s.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Warn("app: tag export failed")
	}
}

func (s *Service) History(ctx context.Context, id string, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return []journal.Entry{}, nil
	}
	if _, err := s.loader.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.journal.History(id, limit)
	if errors.Is(err, journal.ErrNoHistory) {
		return []journal.Entry{}, nil
	}
	return entries, err
}

func (s *Service) Revision(ctx context.Context, id, hash string) (*report.Document, error) {
	if s.journal == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision history is not enabled", nil)
	}
	if _, err := s.loader.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.journal.Snapshot(id, hash)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// view returns the open view of id, opening one from the loader on first use.
func (s *Service) view(ctx context.Context, id string) (*workflow.View, error) {
	if v, ok := s.cachedView(id); ok {
		return v, nil
	}
	unlock := s.lockReport(id)
	defer unlock()
	if v, ok := s.cachedView(id); ok {
		return v, nil
	}
	doc, err := s.loader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(doc), nil
}

// withView runs fn against the open view of id. A view closed underneath
// fn, by an ingest or by eviction, is replaced and fn runs once more.
func (s *Service) withView(ctx context.Context, id string, fn func(*workflow.View) error) error {
	v, err := s.view(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(v); !errors.Is(err, workflow.ErrViewClosed) {
		return err
	}
	s.forget(id, v)
	if v, err = s.view(ctx, id); err != nil {
		return err
	}
	return fn(v)
}

func (s *Service) cachedView(id string) (*workflow.View, bool) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	v, ok := s.views[id]
	if ok {
		s.lastUsed[id] = s.now()
	}
	return v, ok
}

func (s *Service) open(doc *report.Document) *workflow.View {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	s.lastUsed[doc.ID] = s.now()
	if v, ok := s.views[doc.ID]; ok {
		return v
	}
	v := workflow.NewView(doc, s.loader, s.collector,
		workflow.WithClock(s.now),
		workflow.WithLogger(s.log),
		workflow.WithMetrics(s.metrics),
		workflow.WithRefreshTimeout(s.refreshTimeout),
	)
	s.views[doc.ID] = v
	s.evictIdleLocked(doc.ID)
	return v
}

// evictIdleLocked drops idle views, least recently used first, until at
// most maxViews remain. Views with refreshes in flight or editorial state
// are kept, so the bound is soft. keep is never evicted.
func (s *Service) evictIdleLocked(keep string) {
	if len(s.views) <= s.maxViews {
		return
	}
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		if id != keep {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.lastUsed[ids[i]].Before(s.lastUsed[ids[j]]) })
	for _, id := range ids {
		if len(s.views) <= s.maxViews {
			return
		}
		v := s.views[id]
		if !v.Idle() {
			continue
		}
		v.Close("view evicted")
		delete(s.views, id)
		delete(s.lastUsed, id)
	}
}

// close drops the open view of id and expires its refreshes. When close
// returns none of them can still save.
func (s *Service) close(id, reason string) {
	s.viewsMu.Lock()
	v, ok := s.views[id]
	delete(s.views, id)
	delete(s.lastUsed, id)
	s.viewsMu.Unlock()
	if ok {
		v.Close(reason)
	}
}

// forget drops v from the registry if it is still the view of id.
func (s *Service) forget(id string, v *workflow.View) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	if s.views[id] == v {
		delete(s.views, id)
		delete(s.lastUsed, id)
	}
}

func (s *Service) lockReport(id string) func() {
	mu, _ := s.reportLocks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
