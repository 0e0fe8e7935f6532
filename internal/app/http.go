package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"dossier/api/internal/rbac"
	"dossier/api/internal/report"
	"dossier/api/internal/search"
)

// RoleHeader carries the caller's editorial role. It is set by the gateway
// in front of this service; requests without it are treated as viewers.
const RoleHeader = "X-Report-Role"

const maxIngestBody = 8 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logrus.FieldLogger
}

func NewHTTPServer(service *Service, corsOrigin string, log logrus.FieldLogger) *HTTPServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Route("/api/reports", func(r chi.Router) {
		r.With(s.require(rbac.ActionView)).Get("/", s.handleListReports)
		r.With(s.require(rbac.ActionEdit)).Post("/", s.handleCreateReport)
		r.With(s.require(rbac.ActionIngest)).Post("/ingest", s.handleIngest)
		r.With(s.require(rbac.ActionView)).Get("/search", s.handleSearch)

		r.Route("/{reportID}", func(r chi.Router) {
			r.With(s.require(rbac.ActionView)).Get("/", s.handleGetReport)
			r.With(s.require(rbac.ActionIngest)).Put("/ingest", s.handleIngest)
			r.With(s.require(rbac.ActionExport)).Get("/export", s.handleDownload)
			r.With(s.require(rbac.ActionExport)).Post("/exports", s.handleExport)
			r.With(s.require(rbac.ActionView)).Get("/history", s.handleHistory)
			r.With(s.require(rbac.ActionView)).Get("/history/{hash}", s.handleRevision)

			r.Route("/sections/{sectionID}", func(r chi.Router) {
				r.With(s.require(rbac.ActionEdit)).Put("/", s.handleUpdateSection)
				r.With(s.require(rbac.ActionApprove)).Post("/approve", s.handleToggle(ToggleApproval))
				r.With(s.require(rbac.ActionView)).Post("/open", s.handleToggle(ToggleOpen))
				r.With(s.require(rbac.ActionEdit)).Post("/edit", s.handleToggle(ToggleEdit))
				r.With(s.require(rbac.ActionRefresh)).Post("/refresh", s.handleRefresh)
				r.With(s.require(rbac.ActionRefresh)).Post("/expire", s.handleExpire)
			})
		})
	})
	return r
}

// require rejects callers whose role may not take action.
func (s *HTTPServer) require(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := r.Header.Get(RoleHeader)
			if !s.service.Can(role, action) {
				s.log.WithFields(logrus.Fields{
					"request_id": requestID(r.Context()),
					"role":       rbac.Normalize(role),
					"action":     action,
					"path":       r.URL.Path,
				}).Warn("http: forbidden")
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"persistence": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["persistence"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.service.ListReports(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var body CreateReportInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.CreateReport(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
		return
	}
	if len(body) > maxIngestBody {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Payload too large", nil)
		return
	}
	reportID := chi.URLParam(r, "reportID")
	view, err := s.service.IngestReport(r.Context(), body, reportID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if reportID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, view)
}

func (s *HTTPServer) handleToggle(action SectionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		section, ok := sectionParam(w, r)
		if !ok {
			return
		}
		state, err := s.service.ToggleSection(r.Context(), chi.URLParam(r, "reportID"), section, action)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"section": section, "state": state})
	}
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	var patch report.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.UpdateSection(r.Context(), chi.URLParam(r, "reportID"), section, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	wait := r.URL.Query().Get("wait") == "true"
	result, err := s.service.RefreshSection(r.Context(), chi.URLParam(r, "reportID"), section, wait)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if result.Done {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *HTTPServer) handleExpire(w http.ResponseWriter, r *http.Request) {
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	expired, err := s.service.ExpireSection(r.Context(), chi.URLParam(r, "reportID"), section, body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section, "expired": expired})
}

// handleDownload streams the rendered file.
func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ExportReport(r.Context(), chi.URLParam(r, "reportID"), ExportInput{Format: r.URL.Query().Get("format")})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res := out.Result
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("X-Report-Pages", strconv.Itoa(res.Pages))
	w.Header().Set("X-Report-Fingerprint", res.Fingerprint)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// handleExport renders, stores and optionally announces an export.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var body ExportInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	out, err := s.service.ExportReport(r.Context(), chi.URLParam(r, "reportID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"filename":    out.Result.Filename,
		"mimeType":    out.Result.MimeType,
		"pages":       out.Result.Pages,
		"fingerprint": out.Result.Fingerprint,
		"objectKey":   out.ObjectKey,
		"downloadUrl": out.DownloadURL,
	})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.service.History(r.Context(), chi.URLParam(r, "reportID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Revision(r.Context(), chi.URLParam(r, "reportID"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:   strings.TrimSpace(q.Get("q")),
		Status: report.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}))
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("http: request failed")
	}
	writeError(w, status, code, message, details)
}

func sectionParam(w http.ResponseWriter, r *http.Request) (report.SectionID, bool) {
	section, err := report.ParseSectionID(chi.URLParam(r, "sectionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_SECTION", "Unknown section", map[string]any{"section": chi.URLParam(r, "sectionID")})
		return "", false
	}
	return section, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		if r.Method == http.MethodOptions {
			writeJSON(writer, http.StatusNoContent, map[string]any{})
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http: request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+RoleHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Report-Pages, X-Report-Fingerprint")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
