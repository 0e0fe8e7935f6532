// Package workflow is the editorial state machine for one open report. It
// layers the open, approved, editing and refreshing flags over each
// section's agent status and drives section re-collection.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"dossier/api/internal/collector"
	"dossier/api/internal/metrics"
	"dossier/api/internal/report"
)

var (
	// ErrNotEditing is returned by CommitEdit when the section is not in edit mode.
	ErrNotEditing = errors.New("section is not being edited")
	// ErrRefreshFailed wraps the cause of a failed or expired refresh.
	ErrRefreshFailed = errors.New("section refresh failed")
	// ErrViewClosed is returned by mutations of a view after Close.
	ErrViewClosed = errors.New("report view closed")
)

// SectionState is the editorial state of one section.
type SectionState struct {
	Open        bool               `json:"open"`
	Approved    bool               `json:"approved"`
	Editing     bool               `json:"editing"`
	Refreshing  bool               `json:"refreshing"`
	AgentStatus report.AgentStatus `json:"agentStatus"`
	LastError   string             `json:"lastError,omitempty"`
}

// Saver persists a document and returns the stored snapshot.
type Saver interface {
	Save(ctx context.Context, doc *report.Document) (*report.Document, error)
}

// EventKind names a state change reported to listeners.
type EventKind string

const (
	EventRefreshStarted   EventKind = "refresh_started"
	EventRefreshJoined    EventKind = "refresh_joined"
	EventRefreshCompleted EventKind = "refresh_completed"
	EventRefreshFailed    EventKind = "refresh_failed"
	EventRefreshExpired   EventKind = "refresh_expired"
	EventRefreshDiscarded EventKind = "refresh_discarded"
	EventEditCommitted    EventKind = "edit_committed"
)

type Event struct {
	Kind     EventKind
	ReportID string
	Section  report.SectionID
	Status   report.AgentStatus
	Err      error
}

type Option func(*View)

func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(v *View) { v.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *View) { v.metrics = m }
}

// WithRefreshTimeout expires any refresh still outstanding after d.
func WithRefreshTimeout(d time.Duration) Option {
	return func(v *View) { v.timeout = d }
}

// WithListener registers fn for every Event. fn runs with the view locked
// and must not call back into the view.
func WithListener(fn func(Event)) Option {
	return func(v *View) { v.listeners = append(v.listeners, fn) }
}

// View owns the current document reference for one open report. Every
// mutation replaces the reference with a new document value; documents
// handed out earlier are never modified.
type View struct {
	mu        sync.Mutex
	doc       *report.Document
	states    map[report.SectionID]*SectionState
	flights   map[report.SectionID]*flight
	gens      map[report.SectionID]uint64
	group     singleflight.Group
	closed    bool
	saver     Saver
	collector collector.Collector
	now       func() time.Time
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	timeout   time.Duration
	listeners []func(Event)
}

// NewView opens doc for editing. A section persisted as running has no
// round-trip behind it in this process, so it starts out as error.
func NewView(doc *report.Document, saver Saver, col collector.Collector, opts ...Option) *View {
	v := &View{
		doc:       doc,
		states:    make(map[report.SectionID]*SectionState, report.AgentsTotal),
		flights:   make(map[report.SectionID]*flight),
		gens:      make(map[report.SectionID]uint64),
		saver:     saver,
		collector: col,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	for _, id := range report.Sections() {
		st := &SectionState{Open: true, AgentStatus: doc.Section(id).AgentStatus}
		if st.AgentStatus == report.AgentRunning {
			if next, err := report.SetAgentStatus(v.doc, id, report.AgentError, v.now().UTC()); err == nil {
				v.doc = next
			}
			st.AgentStatus = report.AgentError
			st.LastError = "collection interrupted"
		}
		v.states[id] = st
	}
	return v
}

// Document returns the current document reference.
func (v *View) Document() *report.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc
}

// State returns a copy of the state of section id.
func (v *View) State(id report.SectionID) (SectionState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, err := v.state(id)
	if err != nil {
		return SectionState{}, err
	}
	return *st, nil
}

// States returns a copy of every section's state.
func (v *View) States() map[report.SectionID]SectionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[report.SectionID]SectionState, len(v.states))
	for id, st := range v.states {
		out[id] = *st
	}
	return out
}

// ToggleApproval flips the user attestation for section id.
func (v *View) ToggleApproval(id report.SectionID) (SectionState, error) {
	return v.toggle(id, func(st *SectionState) { st.Approved = !st.Approved })
}

func (v *View) ToggleOpen(id report.SectionID) (SectionState, error) {
	return v.toggle(id, func(st *SectionState) { st.Open = !st.Open })
}

// ToggleEdit enters or leaves edit mode for section id.
func (v *View) ToggleEdit(id report.SectionID) (SectionState, error) {
	return v.toggle(id, func(st *SectionState) { st.Editing = !st.Editing })
}

func (v *View) toggle(id report.SectionID, flip func(*SectionState)) (SectionState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, err := v.writable(id)
	if err != nil {
		return SectionState{}, err
	}
	flip(st)
	return *st, nil
}

// CommitEdit merges patch into section id and saves the result. The view
// only moves to the saved document when the save succeeds.
func (v *View) CommitEdit(ctx context.Context, id report.SectionID, patch report.Patch) (*report.Document, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, err := v.writable(id)
	if err != nil {
		return nil, err
	}
	if !st.Editing {
		return nil, fmt.Errorf("%w: %s", ErrNotEditing, id)
	}
	next, err := report.ApplySectionUpdate(v.doc, id, patch, v.now().UTC())
	if err != nil {
		return nil, err
	}
	saved, err := v.saver.Save(ctx, next)
	if err != nil {
		return nil, err
	}
	v.doc = saved
	v.emit(Event{Kind: EventEditCommitted, Section: id, Status: st.AgentStatus})
	return saved, nil
}

// Refresh re-collects section id. While a refresh of id is outstanding a
// second call starts nothing and returns a joined ticket for the running
// round-trip. The round-trip ignores cancellation of ctx; bound it with
// Expire or WithRefreshTimeout.
func (v *View) Refresh(ctx context.Context, id report.SectionID) (*Ticket, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, err := v.writable(id)
	if err != nil {
		return nil, err
	}

	if f, ok := v.flights[id]; ok && st.Refreshing {
		v.metrics.IncrementRefreshJoined()
		v.emit(Event{Kind: EventRefreshJoined, Section: id, Status: st.AgentStatus})
		return v.ticket(f, true, st.AgentStatus), nil
	}

	if v.collector == nil {
		return nil, fmt.Errorf("%w: no collector configured", ErrRefreshFailed)
	}
	next, err := report.SetAgentStatus(v.doc, id, report.AgentRunning, v.now().UTC())
	if err != nil {
		return nil, err
	}
	v.doc = next
	st.Refreshing = true
	st.AgentStatus = report.AgentRunning
	st.LastError = ""

	v.gens[id]++
	f := &flight{
		section: id,
		ctx:     context.WithoutCancel(ctx),
		key:     string(id) + "#" + strconv.FormatUint(v.gens[id], 10),
		gen:     v.gens[id],
		started: time.Now(),
		expired: make(chan struct{}),
	}
	v.flights[id] = f

	if v.timeout > 0 {
		gen := f.gen
		time.AfterFunc(v.timeout, func() { v.expire(id, gen, "refresh timed out") })
	}
	v.emit(Event{Kind: EventRefreshStarted, Section: id, Status: report.AgentRunning})
	v.log.WithFields(logrus.Fields{"report_id": v.doc.ID, "section": id}).Info("workflow: refresh started")
	return v.ticket(f, false, report.AgentRunning), nil
}

// ticket subscribes to f through the singleflight group. Callers hold v.mu,
// which keeps the flight registered until the subscription is in place.
func (v *View) ticket(f *flight, joined bool, status report.AgentStatus) *Ticket {
	ch := v.group.DoChan(f.key, func() (any, error) {
		return v.roundTrip(f.section, f), nil
	})
	return &Ticket{Section: f.section, Joined: joined, Status: status, ch: ch, flight: f}
}

// Expire forces an outstanding refresh of id to error. A result that
// arrives later is discarded. It reports whether a refresh was outstanding.
func (v *View) Expire(id report.SectionID, reason string) bool {
	v.mu.Lock()
	gen := v.gens[id]
	v.mu.Unlock()
	return v.expire(id, gen, reason)
}

func (v *View) expire(id report.SectionID, gen uint64, reason string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.flights[id]
	if !ok || f.gen != gen {
		return false
	}
	err := fmt.Errorf("%w: %s: %s", ErrRefreshFailed, id, reason)
	out := v.fail(id, f, err)
	v.gens[id]++
	f.outcome = out
	close(f.expired)
	v.metrics.ObserveRefresh(string(id), "expired", f.started)
	v.emit(Event{Kind: EventRefreshExpired, Section: id, Status: report.AgentError, Err: err})
	return true
}

// roundTrip runs once per flight. It collects without holding the lock and
// applies the result only if the flight is still current.
func (v *View) roundTrip(id report.SectionID, f *flight) Outcome {
	v.mu.Lock()
	req := collector.Request{
		ReportID:    v.doc.ID,
		CaseNumber:  v.doc.CaseNumber,
		TargetName:  v.doc.TargetName,
		TargetEmail: v.doc.TargetEmail,
		Section:     id,
	}
	v.mu.Unlock()

	res, collectErr := v.collect(f.ctx, req)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.flights[id] != f || v.gens[id] != f.gen {
		v.metrics.ObserveRefresh(string(id), "discarded", f.started)
		v.emit(Event{Kind: EventRefreshDiscarded, Section: id, Err: collectErr})
		v.log.WithFields(logrus.Fields{"report_id": req.ReportID, "section": id}).Warn("workflow: stale refresh result discarded")
		out := f.outcome
		if out.Status == "" {
			// Closed before Close got to expire this flight.
			out = Outcome{Section: id, Status: report.AgentError, Err: fmt.Errorf("%w: %s: %w", ErrRefreshFailed, id, ErrViewClosed)}
		}
		out.Stale = true
		return out
	}

	if collectErr != nil {
		out := v.fail(id, f, fmt.Errorf("%w: %s: %w", ErrRefreshFailed, id, collectErr))
		v.metrics.ObserveRefresh(string(id), "error", f.started)
		v.emit(Event{Kind: EventRefreshFailed, Section: id, Status: report.AgentError, Err: out.Err})
		return out
	}

	now := v.now().UTC()
	next, err := report.ApplySectionUpdate(v.doc, id, res.Patch, now)
	if err == nil {
		next, err = report.AppendBibliography(next, id, res.Sources, now)
	}
	if err == nil {
		next, err = report.SetAgentStatus(next, id, report.AgentCompleted, now)
	}
	if err != nil {
		out := v.fail(id, f, fmt.Errorf("%w: %s: %w", ErrRefreshFailed, id, err))
		v.metrics.ObserveRefresh(string(id), "error", f.started)
		v.emit(Event{Kind: EventRefreshFailed, Section: id, Status: report.AgentError, Err: out.Err})
		return out
	}

	out := Outcome{Section: id, Status: report.AgentCompleted}
	if saved, saveErr := v.saver.Save(f.ctx, next); saveErr != nil {
		out.SaveErr = saveErr
		v.doc = next
	} else {
		v.doc = saved
	}
	st := v.states[id]
	st.Refreshing = false
	st.AgentStatus = report.AgentCompleted
	delete(v.flights, id)
	out.Document = v.doc

	v.metrics.ObserveRefresh(string(id), "completed", f.started)
	v.emit(Event{Kind: EventRefreshCompleted, Section: id, Status: report.AgentCompleted})
	v.log.WithFields(logrus.Fields{
		"report_id": req.ReportID,
		"section":   id,
		"sources":   len(res.Sources),
		"saved":     out.SaveErr == nil,
	}).Info("workflow: refresh completed")
	return out
}

func (v *View) collect(ctx context.Context, req collector.Request) (res collector.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector panic: %v", r)
		}
	}()
	return v.collector.Collect(ctx, req)
}

// fail records a failed flight. Section data is left as it was. Callers
// hold v.mu.
func (v *View) fail(id report.SectionID, f *flight, err error) Outcome {
	if next, serr := report.SetAgentStatus(v.doc, id, report.AgentError, v.now().UTC()); serr == nil {
		v.doc = next
	}
	st := v.states[id]
	st.Refreshing = false
	st.AgentStatus = report.AgentError
	st.LastError = err.Error()
	if v.flights[id] == f {
		delete(v.flights, id)
	}
	v.log.WithFields(logrus.Fields{"report_id": v.doc.ID, "section": id}).WithError(err).Warn("workflow: refresh failed")
	return Outcome{Section: id, Status: report.AgentError, Err: err, Document: v.doc}
}

// Close expires every outstanding refresh and rejects later mutations with
// ErrViewClosed. When Close returns no round-trip of this view can still
// save.
func (v *View) Close(reason string) {
	v.mu.Lock()
	v.closed = true
	pending := make(map[report.SectionID]uint64, len(v.flights))
	for id, f := range v.flights {
		pending[id] = f.gen
	}
	v.mu.Unlock()
	for id, gen := range pending {
		v.expire(id, gen, reason)
	}
}

// Idle reports whether the view holds nothing its document does not: no
// outstanding refresh and every section in its initial editorial state. A
// view busy saving counts as not idle.
func (v *View) Idle() bool {
	if !v.mu.TryLock() {
		return false
	}
	defer v.mu.Unlock()
	if len(v.flights) > 0 {
		return false
	}
	for _, st := range v.states {
		if !st.Open || st.Approved || st.Editing || st.Refreshing {
			return false
		}
	}
	return true
}

// writable is state for mutations; it fails once the view is closed.
func (v *View) writable(id report.SectionID) (*SectionState, error) {
	if v.closed {
		return nil, ErrViewClosed
	}
	return v.state(id)
}

func (v *View) state(id report.SectionID) (*SectionState, error) {
	st, ok := v.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", report.ErrUnknownSection, id)
	}
	return st, nil
}

func (v *View) emit(e Event) {
	e.ReportID = v.doc.ID
	for _, fn := range v.listeners {
		fn(e)
	}
}
