package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// errorBody is the JSON shape of every error response. Error carries the
// underlying cause and is only populated in development.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "Interview not found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, ""
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, ""
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "Upstream service timed out"
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusServiceUnavailable, "Upstream service unavailable"
	}
	return http.StatusInternalServerError, "Server error"
}

// writeError renders err as {message, error?}. Client errors surface their
// message verbatim; server errors get a generic message and are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	code, msg := statusFor(err)
	if msg == "" {
		msg = err.Error()
	}
	if code >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	body := errorBody{Message: msg, Details: details}
	if s.Cfg.IsDev() {
		body.Error = err.Error()
	}
	writeJSON(w, code, body)
}
