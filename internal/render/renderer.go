package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dossier/api/internal/metrics"
	"dossier/api/internal/report"
)

// Format is an export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatDOCX Format = "docx"
)

var (
	// ErrUnsupportedFormat indicates an export format this renderer cannot write.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatPDF, FormatHTML, FormatDOCX:
		return f, nil
	case "":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Result is one rendered export.
type Result struct {
	Data        []byte
	Filename    string
	MimeType    string
	Pages       int
	Fingerprint string
	Layout      *Layout
}

type Option func(*Renderer)

func WithGeometry(g Geometry) Option {
	return func(r *Renderer) { r.geometry = g }
}

func WithDisclaimer(text string) Option {
	return func(r *Renderer) { r.disclaimer = text }
}

func WithPDFTimeout(d time.Duration) Option {
	return func(r *Renderer) { r.pdfTimeout = d }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Renderer) { r.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// Renderer paginates documents and writes them in an export format.
type Renderer struct {
	geometry   Geometry
	disclaimer string
	pdfTimeout time.Duration
	log        logrus.FieldLogger
	metrics    *metrics.Metrics

	pdf  func(ctx context.Context, html string, g Geometry, timeout time.Duration) ([]byte, error)
	docx func(ctx context.Context, html string) ([]byte, error)
}

// New validates the configured geometry up front; bad page constants are
// a programming error, not a per-render condition.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		geometry:   DefaultGeometry(),
		pdfTimeout: 30 * time.Second,
		log:        logrus.StandardLogger(),
		pdf:        exportPDF,
		docx:       exportDOCX,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.geometry.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Geometry() Geometry {
	return r.geometry
}

// Paginate lays doc out with the renderer's geometry.
func (r *Renderer) Paginate(doc *report.Document, generatedAt time.Time) (*Layout, error) {
	start := time.Now()
	layout, err := Paginate(doc, r.geometry, Options{GeneratedAt: generatedAt, Disclaimer: r.disclaimer})
	if err != nil {
		r.log.WithFields(logrus.Fields{"report_id": doc.ID}).WithError(err).Error("render: pagination failed")
		return nil, err
	}
	r.metrics.ObserveRender(len(layout.Pages), start)
	return layout, nil
}

// Render paginates doc and writes it as format.
func (r *Renderer) Render(ctx context.Context, doc *report.Document, format Format, generatedAt time.Time) (*Result, error) {
	layout, err := r.Paginate(doc, generatedAt)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Filename:    Filename(doc.TargetName, doc.CaseNumber, string(format)),
		Pages:       len(layout.Pages),
		Fingerprint: Fingerprint(layout),
		Layout:      layout,
	}

	switch format {
	case FormatHTML:
		html, err := RenderHTML(layout)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		result.Data = []byte(html)
		result.MimeType = "text/html; charset=utf-8"
	case FormatPDF:
		html, err := RenderHTML(layout)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if result.Data, err = r.pdf(ctx, html, r.geometry, r.pdfTimeout); err != nil {
			return nil, err
		}
		result.MimeType = "application/pdf"
	case FormatDOCX:
		html, err := RenderFlowHTML(layout)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if result.Data, err = r.docx(ctx, html); err != nil {
			return nil, err
		}
		result.MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	r.log.WithFields(logrus.Fields{
		"report_id":   doc.ID,
		"format":      format,
		"pages":       result.Pages,
		"fingerprint": result.Fingerprint[:12],
	}).Info("render: export produced")
	return result, nil
}
