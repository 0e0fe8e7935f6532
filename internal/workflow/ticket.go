package workflow

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dossier/api/internal/report"
)

// Outcome is the terminal result of one refresh round-trip.
type Outcome struct {
	Section report.SectionID
	Status  report.AgentStatus
	// Err wraps ErrRefreshFailed when Status is error.
	Err error
	// SaveErr is set when the refreshed data was applied but not persisted.
	SaveErr error
	// Stale marks a result that arrived after the refresh was expired.
	Stale    bool
	Document *report.Document
}

// flight is one outstanding round-trip for a section.
type flight struct {
	section report.SectionID
	ctx     context.Context
	key     string
	gen     uint64
	started time.Time
	expired chan struct{}
	// outcome is written before expired is closed.
	outcome Outcome
}

// Ticket is a handle on a refresh. Joined tickets share the round-trip
// started by an earlier call.
type Ticket struct {
	Section report.SectionID
	Joined  bool
	// Status is the section's agent status when the ticket was issued.
	Status report.AgentStatus

	ch     <-chan singleflight.Result
	flight *flight

	mu       sync.Mutex
	resolved bool
	outcome  Outcome
}

// Wait blocks until the refresh resolves or ctx is done. Cancelling ctx
// stops the wait, not the round-trip.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return t.outcome, nil
	}
	select {
	case res := <-t.ch:
		t.outcome = res.Val.(Outcome)
	case <-t.flight.expired:
		t.outcome = t.flight.outcome
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	t.resolved = true
	return t.outcome, nil
}
