package web

// errors.go turns service errors into responses.
//
// The technical error is logged with the request id; the client gets the
// core.MapError message and support code, rendered for the kind of request:
// an alert fragment for HTMX, JSON for API clients, plain text otherwise.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/ingest"
	"github.com/JonMunkholm/moduletrack/internal/logging"
	"github.com/JonMunkholm/moduletrack/internal/web/templates"
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var verr *core.ValidationError
	var ierr *core.ImportError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr), errors.As(err, &ierr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateKey), errors.Is(err, core.ErrImportInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrLineCountMismatch), errors.Is(err, core.ErrKeyValueMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownColumn), errors.Is(err, ingest.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrFileTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case strings.Contains(err.Error(), "invalid request"), strings.Contains(err.Error(), "no file provided"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message. A zero
// statusCode is derived from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode)
	case wantsJSON(r):
		respondErrorJSON(w, err, userMsg, statusCode)
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

func respondErrorJSON(w http.ResponseWriter, err error, msg core.UserMessage, statusCode int) {
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// renderErrorPartial renders the alert fragment. HTMX does not swap error
// responses by default, so the fragment is sent with 200 and the real
// status in a header.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Error-Status", http.StatusText(statusCode))
	w.Header().Set("HX-Retarget", "#alerts")
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers a JSON response. API routes
// default to JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}
