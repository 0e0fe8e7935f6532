package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-git/go-git/v5/plumbing"

	"dossier/api/internal/render"
	"dossier/api/internal/report"
	"dossier/api/internal/store"
	"dossier/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// errorMapping turns a sentinel into an API error. An empty message passes
// the wrapped error text through.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// First match wins.
var errorMappings = []errorMapping{
	{store.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Report not found"},
	{report.ErrUnknownSection, http.StatusNotFound, "UNKNOWN_SECTION", "Unknown section"},
	{report.ErrInvalidPatch, http.StatusUnprocessableEntity, "INVALID_PATCH", ""},
	{workflow.ErrNotEditing, http.StatusConflict, "NOT_EDITING", "Section is not in edit mode"},
	{workflow.ErrViewClosed, http.StatusConflict, "REPORT_REPLACED", "Report was replaced; reload it"},
	{workflow.ErrRefreshFailed, http.StatusServiceUnavailable, "REFRESH_UNAVAILABLE", ""},
	{render.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT", ""},
	{render.ErrPDFDependencyMissing, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", ""},
	{render.ErrDOCXDependencyMissing, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", ""},
	{render.ErrBlockTooTall, http.StatusUnprocessableEntity, "LAYOUT_FAILED", ""},
	{plumbing.ErrReferenceNotFound, http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found"},
	{plumbing.ErrObjectNotFound, http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		return m.status, m.code, message, nil
	}
	var persistErr *store.PersistenceError
	if errors.As(err, &persistErr) {
		return http.StatusServiceUnavailable, "PERSISTENCE_FAILED", "Report store unavailable", map[string]any{"op": persistErr.Op}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
