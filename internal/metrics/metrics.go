package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks report loading, section refresh outcomes and rendering.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheLookups    *prometheus.CounterVec
	SaveFailures    prometheus.Counter
	RefreshOutcomes *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	RefreshesJoined prometheus.Counter
	ReportsIngested prometheus.Counter
	PagesRendered   prometheus.Histogram
	RenderDuration  prometheus.Histogram
}

// New registers every report metric with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_report_cache_lookups_total",
			Help: "Report cache lookups by result (hit or miss)",
		}, []string{"result"}),
		SaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dossier_report_save_failures_total",
			Help: "Report saves rejected by the persistence backend",
		}),
		RefreshOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_section_refresh_total",
			Help: "Section refresh round-trips by section and outcome",
		}, []string{"section", "outcome"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dossier_section_refresh_duration_seconds",
			Help:    "Duration of section refresh round-trips",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RefreshesJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "dossier_section_refresh_joined_total",
			Help: "Refresh calls folded into an outstanding round-trip",
		}),
		ReportsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "dossier_reports_ingested_total",
			Help: "Reports created from an ingestion payload",
		}),
		PagesRendered: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dossier_render_pages",
			Help:    "Page count of rendered reports",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dossier_render_duration_seconds",
			Help:    "Duration of report pagination",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncrementSaveFailures() {
	if m == nil {
		return
	}
	m.SaveFailures.Inc()
}

// ObserveRefresh records one finished round-trip. Call with time.Now() at
// the start of the round-trip.
func (m *Metrics) ObserveRefresh(section, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.RefreshOutcomes.WithLabelValues(section, outcome).Inc()
	m.RefreshDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRefreshJoined() {
	if m == nil {
		return
	}
	m.RefreshesJoined.Inc()
}

func (m *Metrics) IncrementIngested() {
	if m == nil {
		return
	}
	m.ReportsIngested.Inc()
}

// ObserveRender records the page count and pagination time of one render.
func (m *Metrics) ObserveRender(pages int, start time.Time) {
	if m == nil {
		return
	}
	m.PagesRendered.Observe(float64(pages))
	m.RenderDuration.Observe(time.Since(start).Seconds())
}
