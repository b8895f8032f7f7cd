// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST API used by the candidate chat client and the
// interviewer dashboard, and maps domain errors to HTTP responses.
package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg       config.Config
	Users     usecase.UserService
	Sessions  usecase.SessionService
	Tracker   usecase.TrackerService
	Dashboard usecase.DashboardService
	Evaluate  usecase.EvaluateService
	Questions usecase.QuestionService
	Resumes   usecase.ResumeService
	Checks    []Check
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(
	cfg config.Config,
	users usecase.UserService,
	sessions usecase.SessionService,
	tracker usecase.TrackerService,
	dashboard usecase.DashboardService,
	evaluate usecase.EvaluateService,
	questions usecase.QuestionService,
	resumes usecase.ResumeService,
	checks ...Check,
) *Server {
	return &Server{
		Cfg:       cfg,
		Users:     users,
		Sessions:  sessions,
		Tracker:   tracker,
		Dashboard: dashboard,
		Evaluate:  evaluate,
		Questions: questions,
		Resumes:   resumes,
		Checks:    checks,
	}
}

// emailParam returns the unescaped {email} path parameter.
func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler runs every readiness probe and returns 503 if any fails.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			res := check{Name: c.Name, OK: true}
			if err := c.Probe(ctx); err != nil {
				res.OK, res.Details = false, err.Error()
				ok = false
			}
			checks = append(checks, res)
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
