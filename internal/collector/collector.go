// Package collector talks to the external collection pipeline that re-runs
// one section's agent for a report.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dossier/api/internal/report"
)

// ErrCollectionFailed wraps every failed round-trip.
var ErrCollectionFailed = errors.New("collection failed")

// Request identifies the section to collect and the subject it is about.
type Request struct {
	ReportID    string           `json:"reportId"`
	CaseNumber  string           `json:"caseNumber"`
	TargetName  string           `json:"targetName"`
	TargetEmail *string          `json:"targetEmail,omitempty"`
	Section     report.SectionID `json:"section"`
}

// Result is the replacement data for one section plus the sources that
// back it. Patch has the shape report.ApplySectionUpdate expects.
type Result struct {
	Patch   report.Patch                `json:"data"`
	Sources []report.BibliographySource `json:"sources"`
}

type Collector interface {
	Collect(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Collector.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Collect(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

type Config struct {
	BaseURL   string
	APIKey    string
	PerMinute int
	Burst     int
	Timeout   time.Duration
}

// Client posts collection requests to {BaseURL}/collect. Outbound calls
// share one rate limiter.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

var _ Collector = (*Client)(nil)

func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/60.0), cfg.Burst),
		log:     log,
	}
}

func (c *Client) Collect(ctx context.Context, req Request) (Result, error) {
	if !req.Section.Valid() {
		return Result{}, fmt.Errorf("%w: %w: %q", ErrCollectionFailed, report.ErrUnknownSection, req.Section)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: rate limit: %w", ErrCollectionFailed, err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %w", ErrCollectionFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collect", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: create request: %w", ErrCollectionFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	res, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCollectionFailed, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %w", ErrCollectionFailed, err)
	}
	log := c.log.WithFields(logrus.Fields{
		"report_id":   req.ReportID,
		"section":     req.Section,
		"status":      res.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if res.StatusCode < 200 || res.StatusCode > 299 {
		log.Warn("collector: non-success response")
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrCollectionFailed, res.StatusCode, snippet(body))
	}

	var out Result
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %w", ErrCollectionFailed, err)
	}
	if out.Patch == nil {
		return Result{}, fmt.Errorf("%w: response carries no data", ErrCollectionFailed)
	}
	log.WithField("sources", len(out.Sources)).Debug("collector: section collected")
	return out, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
