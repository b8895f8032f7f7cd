package httpserver

import (
	"net/http"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// SaveUserHandler creates or updates a candidate profile keyed by email.
func (s *Server) SaveUserHandler() http.HandlerFunc {
	type request struct {
		Name       string         `json:"name" validate:"required"`
		Email      string         `json:"email" validate:"required"`
		Phone      string         `json:"phone" validate:"required"`
		ResumeData *domain.Resume `json:"resumeData"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		u, created, err := s.Users.Save(r.Context(), usecase.SaveUserInput{
			Name: req.Name, Email: req.Email, Phone: req.Phone, Resume: req.ResumeData,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		status, action, msg := http.StatusOK, "updated", "User updated successfully"
		if created {
			status, action, msg = http.StatusCreated, "created", "User created successfully"
		}
		writeJSON(w, status, map[string]any{"success": true, "action": action, "message": msg, "user": u})
	}
}

// GetUserByEmailHandler returns the active user with the given email.
func (s *Server) GetUserByEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.Users.GetByEmail(r.Context(), emailParam(r))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
	}
}
