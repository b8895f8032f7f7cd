package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)
	EvaluationFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_evaluation_fallback_total",
			Help: "Answers scored by the local heuristic instead of an LLM",
		},
		[]string{"reason"},
	)
	AnswerScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answer_score",
			Help:    "Distribution of answer scores ([1,10]) by difficulty",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"difficulty", "source"},
	)

	AttemptTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_attempt_transitions_total",
			Help: "Attempt lifecycle transitions (started, resumed, completed, abandoned)",
		},
		[]string{"transition"},
	)
	SessionWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_writes_total",
			Help: "Chat session writes by action",
		},
		[]string{"action"},
	)
)

var registerOnce sync.Once

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestsTotal, HTTPRequestDuration,
		AIRequestsTotal, AIRequestDuration,
		EvaluationFallbackTotal, AnswerScoreHistogram,
		AttemptTransitionsTotal, SessionWritesTotal,
	}
}

// InitMetrics registers the collectors with the default registry once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(collectors()...)
	})
}

// HTTPMetricsMiddleware counts and times requests per chi route pattern.
// The status label is the numeric code.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveAIRequest records one upstream LLM call.
func ObserveAIRequest(provider, operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// ObserveAnswerScore records a scored answer. Out-of-range scores are dropped.
func ObserveAnswerScore(difficulty, source string, score float64) {
	if score >= 1 && score <= 10 {
		AnswerScoreHistogram.WithLabelValues(difficulty, source).Observe(score)
	}
}

// RecordEvaluationFallback counts an answer scored by the local heuristic.
func RecordEvaluationFallback(reason string) {
	EvaluationFallbackTotal.WithLabelValues(reason).Inc()
}

// RecordAttemptTransition counts an attempt lifecycle transition.
func RecordAttemptTransition(transition string) {
	AttemptTransitionsTotal.WithLabelValues(transition).Inc()
}

// RecordSessionWrite counts a chat session write.
func RecordSessionWrite(action string) {
	SessionWritesTotal.WithLabelValues(action).Inc()
}
