// Package app wires HTTP routing and readiness probes for the server binary.
package app

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/config"
)

// ParseOrigins turns CORS_ALLOW_ORIGINS into an allow list. Entries are
// trimmed, trailing slashes dropped and duplicates removed; a "*" anywhere
// or an empty list allows every origin.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
			continue
		case o == "*":
			return []string{"*"}
		case slices.Contains(out, o):
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpserver.TimeoutMiddleware(timeout))
		api.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))

		api.Post("/users/save", srv.SaveUserHandler())
		api.Get("/users/by-email/{email}", srv.GetUserByEmailHandler())

		api.Route("/interviews", func(ir chi.Router) {
			ir.Group(func(dash chi.Router) {
				dash.Use(httpserver.BasicAuthGuard(cfg.InterviewerUsername, cfg.InterviewerPasswordHash))
				dash.Get("/all", srv.ListInterviewsHandler())
				dash.Get("/stats", srv.StatsHandler())
			})
			ir.Post("/create", srv.CreateInterviewHandler())
			ir.Get("/unfinished/{email}", srv.UnfinishedInterviewHandler())
			ir.Get("/user/{email}", srv.UserInterviewsHandler())
			ir.Put("/{id}/question", srv.RecordQuestionHandler())
			ir.Put("/{id}/complete", srv.CompleteInterviewHandler())
			ir.Post("/{id}/summary", srv.SummaryHandler())
			ir.Get("/{id}", srv.GetInterviewHandler())
		})

		api.Post("/sessions/save", srv.SaveSessionHandler())
		api.Get("/sessions/get/{email}", srv.GetSessionHandler())
		api.Delete("/sessions/delete/{email}", srv.DeleteSessionHandler())

		api.Post("/questions/next", srv.NextQuestionHandler())
		api.Post("/answers/evaluate", srv.EvaluateAnswerHandler())
		api.Post("/resumes/parse", srv.ParseResumeHandler())
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
