package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// SaveSessionHandler stores the chat state blob of a user.
func (s *Server) SaveSessionHandler() http.HandlerFunc {
	type request struct {
		Email       string          `json:"email" validate:"required"`
		SessionData json.RawMessage `json:"sessionData" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		sess, action, err := s.Sessions.Save(r.Context(), req.Email, req.SessionData)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		observability.RecordSessionWrite(action)
		status, msg := http.StatusOK, "Session updated successfully"
		if action == usecase.SessionCreated {
			status, msg = http.StatusCreated, "Session created successfully"
		}
		writeJSON(w, status, map[string]any{"success": true, "action": action, "message": msg, "session": sess})
	}
}

// GetSessionHandler returns the active session of a user.
func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Sessions.Get(r.Context(), emailParam(r))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": sess})
	}
}

// DeleteSessionHandler deactivates every active session of a user.
func (s *Server) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Sessions.Delete(r.Context(), emailParam(r)); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		observability.RecordSessionWrite("deleted")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Session deleted successfully"})
	}
}
