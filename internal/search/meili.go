package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxReports = "dossier_reports"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client   meili.ServiceManager
	log      logrus.FieldLogger
	healthy  atomic.Bool
	interval time.Duration
	done     chan struct{}
}

// NewMeili creates a Meilisearch client and configures the report index.
// An unreachable server is not an error: the client starts unhealthy and
// the health loop reconfigures it once the server answers.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	return newMeili(meili.New(url, meili.WithAPIKey(apiKey)), log, 10*time.Second)
}

func newMeili(client meili.ServiceManager, log logrus.FieldLogger, interval time.Duration) *Meili {
	m := &Meili{
		client:   client,
		log:      log,
		interval: interval,
		done:     make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.WithError(err).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxReports,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).Debug("search: create index (may already exist)")
	}

	index := m.client.Index(idxReports)
	filterable := []interface{}{"status", "classification", "sections"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("search: update filterable attributes")
	}
	searchable := []string{"targetName", "aliases", "caseNumber", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxReports,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"targetName", "body"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Status != "" {
		sr.Filter = []string{fmt.Sprintf("status = %q", string(q.Status))}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:         decodeString(hit, "id"),
		CaseNumber: decodeString(hit, "caseNumber"),
		TargetName: decodeString(hit, "targetName"),
		Status:     decodeString(hit, "status"),
		Snippet:    firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexReport adds or replaces one report record.
func (m *Meili) IndexReport(rec ReportRecord) error {
	_, err := m.client.Index(idxReports).AddDocuments([]ReportRecord{rec}, nil)
	return err
}

// IndexReports bulk-indexes report records.
func (m *Meili) IndexReports(records []ReportRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxReports).AddDocuments(records, nil)
	return err
}
