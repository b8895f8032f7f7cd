package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/questions"
	"github.com/fairyhunter13/ai-interviewer/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-interviewer/internal/app"
	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

type stubExtractor struct{ text string }

func (s stubExtractor) Extract(domain.Context, string, []byte) (string, error) { return s.text, nil }

func testConfig() config.Config {
	return config.Config{
		AppEnv:                 "test",
		MaxUploadMB:            1,
		RateLimitPerMin:        1000,
		CORSAllowOrigins:       "*",
		TrackerAllowNewSession: true,
	}
}

func newTestRouter(t *testing.T, cfg config.Config, checks ...httpserver.Check) http.Handler {
	t.Helper()
	pool, err := config.LoadQuestionPool("")
	require.NoError(t, err)
	store := memory.NewStore()
	clock := domain.SystemClock
	srv := httpserver.NewServer(cfg,
		usecase.NewUserService(store.Users(), clock),
		usecase.NewSessionService(store.Users(), store.Sessions(), clock, cfg.SessionTTL),
		usecase.NewTrackerService(store.Users(), store.Attempts(), redpanda.NoopPublisher{}, clock, cfg.TrackerAllowNewSession),
		usecase.NewDashboardService(store.Attempts()),
		usecase.NewEvaluateService(nil, nil),
		usecase.NewQuestionService(questions.NewPool(pool), nil, false),
		usecase.NewResumeService(stubExtractor{text: "Ada Lovelace\nada@x.com\n555-010-0100"}),
		checks...,
	)
	return app.BuildRouter(cfg, srv)
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func saveUser(t *testing.T, h http.Handler, email string) {
	t.Helper()
	rec, body := do(t, h, http.MethodPost, "/api/users/save", map[string]any{
		"name": "Ada Lovelace", "email": email, "phone": "555-010-0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "created", body["action"])
}

func TestUsers_SaveAndGet(t *testing.T) {
	h := newTestRouter(t, testConfig())
	saveUser(t, h, "Ada@X.com")

	rec, body := do(t, h, http.MethodPost, "/api/users/save", map[string]any{
		"name": "Ada King", "email": "ada@x.com", "phone": "555-010-0100",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", body["action"])

	rec, body = do(t, h, http.MethodGet, "/api/users/by-email/ada@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada King", body["user"].(map[string]any)["name"])

	rec, body = do(t, h, http.MethodGet, "/api/users/by-email/nobody@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", body["message"])
	assert.NotContains(t, body, "error")
}

func TestUsers_Validation(t *testing.T) {
	h := newTestRouter(t, testConfig())
	rec, body := do(t, h, http.MethodPost, "/api/users/save", map[string]any{"email": "ada@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "name")

	rec, _ = do(t, h, http.MethodPost, "/api/users/save", map[string]any{
		"name": "Ada", "email": "not-an-email", "phone": "555-010-0100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterviewLifecycle(t *testing.T) {
	h := newTestRouter(t, testConfig())
	saveUser(t, h, "a@x.com")

	rec, body := do(t, h, http.MethodPost, "/api/interviews/create", map[string]any{"email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body["interview"].(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	rec, body = do(t, h, http.MethodPost, "/api/interviews/create", map[string]any{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["resumed"])
	assert.Equal(t, id, body["interview"].(map[string]any)["id"])

	rec, _ = do(t, h, http.MethodPut, "/api/interviews/"+id+"/question", map[string]any{
		"questionData": map[string]any{"id": 1, "question": "What is JSX?", "difficulty": "easy", "timeLimit": 20, "answered": false},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = do(t, h, http.MethodGet, "/api/interviews/unfinished/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	qs := body["interview"].(map[string]any)["questions"].([]any)
	require.Len(t, qs, 1)
	assert.Equal(t, false, qs[0].(map[string]any)["answered"])

	answers := make([]map[string]any, 0, 6)
	for i, d := range domain.DifficultyLadder {
		answers = append(answers, map[string]any{"id": i + 1, "difficulty": d, "answer": "a", "score": 7})
	}
	rec, body = do(t, h, http.MethodPut, "/api/interviews/"+id+"/complete", map[string]any{"allAnswers": answers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	iv := body["interview"].(map[string]any)
	assert.Equal(t, "completed", iv["status"])
	assert.Equal(t, 7.0, iv["averageScore"])
	assert.Equal(t, 42.0, iv["totalScore"])

	rec, body = do(t, h, http.MethodGet, "/api/interviews/unfinished/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["interview"])

	rec, _ = do(t, h, http.MethodPut, "/api/interviews/"+id+"/question", map[string]any{
		"questionData": map[string]any{"id": 1, "answer": "late"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/interviews/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["interview"].(map[string]any)["status"])

	rec, body = do(t, h, http.MethodGet, "/api/interviews/user/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["interviews"], 1)

	rec, body = do(t, h, http.MethodPost, "/api/interviews/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Interview Complete - Score: 7/10 (70%). Answered 6 questions with 84/120 points.", body["summary"])
	assert.Equal(t, "service_unavailable", body["error"])

	rec, body = do(t, h, http.MethodGet, "/api/interviews/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["stats"].(map[string]any)["completed"])
}

func TestInterviews_Errors(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec, _ := do(t, h, http.MethodPost, "/api/interviews/create", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, h, http.MethodPost, "/api/interviews/create", map[string]any{"email": "ghost@x.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", body["message"])

	rec, body = do(t, h, http.MethodPut, "/api/interviews/nonexistent/question", map[string]any{
		"questionData": map[string]any{"id": 1},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Interview not found", body["message"])

	rec, _ = do(t, h, http.MethodPut, "/api/interviews/x/question", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPut, "/api/interviews/x/question", map[string]any{
		"questionData": map[string]any{"id": 9},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/interviews/all?sortBy=email", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/interviews/all?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/interviews/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["interviews"])
}

func TestErrorDetailOnlyInDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "dev"
	h := newTestRouter(t, cfg)
	_, body := do(t, h, http.MethodGet, "/api/sessions/get/ghost@x.com", nil)
	assert.Contains(t, body, "error")

	h = newTestRouter(t, testConfig())
	_, body = do(t, h, http.MethodGet, "/api/sessions/get/ghost@x.com", nil)
	assert.NotContains(t, body, "error")
}

func TestSessions(t *testing.T) {
	h := newTestRouter(t, testConfig())
	saveUser(t, h, "s@x.com")

	rec, body := do(t, h, http.MethodPost, "/api/sessions/save", map[string]any{
		"email": "s@x.com", "sessionData": map[string]any{"chatPhase": "collecting", "messages": []string{"hi"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "created", body["action"])

	rec, body = do(t, h, http.MethodPost, "/api/sessions/save", map[string]any{
		"email": "s@x.com", "sessionData": map[string]any{"chatPhase": "ready"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", body["action"])

	rec, body = do(t, h, http.MethodGet, "/api/sessions/get/s@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["session"].(map[string]any)["sessionData"].(map[string]any)
	assert.Equal(t, "ready", data["chatPhase"])
	assert.NotContains(t, data, "messages")

	rec, _ = do(t, h, http.MethodPost, "/api/sessions/save", map[string]any{
		"email": "s@x.com", "sessionData": map[string]any{"chatPhase": "dancing"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/sessions/delete/s@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, "/api/sessions/delete/s@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/sessions/get/s@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuestionsAndAnswers(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rec, body := do(t, h, http.MethodPost, "/api/questions/next", map[string]any{"difficulty": "medium"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["question"])
	assert.Equal(t, 60.0, body["timeLimit"])
	assert.Equal(t, "pool", body["source"])

	rec, _ = do(t, h, http.MethodPost, "/api/questions/next", map[string]any{"difficulty": "expert"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/answers/evaluate", map[string]any{
		"question": "What is a closure?", "answer": "", "difficulty": "easy", "timeTaken": 20,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["score"])
	assert.Equal(t, "No answer provided.", body["feedback"])

	rec, body = do(t, h, http.MethodPost, "/api/answers/evaluate", map[string]any{
		"question": "What is a closure?", "answer": "The function returns a value", "difficulty": "medium", "timeTaken": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6.0, body["score"])
	assert.Equal(t, "service_unavailable", body["error"])

	rec, _ = do(t, h, http.MethodPost, "/api/answers/evaluate", map[string]any{"answer": "x", "difficulty": "easy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardAuth(t *testing.T) {
	hash, err := httpserver.HashPassword("s3cret", httpserver.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.InterviewerUsername = "lead"
	cfg.InterviewerPasswordHash = hash
	h := newTestRouter(t, cfg)

	rec, _ := do(t, h, http.MethodGet, "/api/interviews/all", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/interviews/stats", nil)
	req.SetBasicAuth("lead", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/interviews/stats", nil)
	req.SetBasicAuth("lead", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// candidate routes stay open
	rec, _ = do(t, h, http.MethodPost, "/api/questions/next", map[string]any{"difficulty": "easy"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReadyMetrics(t *testing.T) {
	h := newTestRouter(t, testConfig(),
		httpserver.Check{Name: "store", Probe: func(context.Context) error { return nil }},
	)
	rec, _ := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, _ = do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = newTestRouter(t, testConfig(),
		httpserver.Check{Name: "tika", Probe: func(context.Context) error { return errors.New("down") }},
	)
	rec, body := do(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := body["checks"].([]any)
	assert.Equal(t, "down", checks[0].(map[string]any)["details"])
}

func TestBuildReadinessChecks(t *testing.T) {
	ok := app.PingerFunc(func(context.Context) error { return nil })
	checks := app.BuildReadinessChecks(ok, nil, ok, nil)
	require.Len(t, checks, 2)
	assert.Equal(t, "store", checks[0].Name)
	assert.Equal(t, "tika", checks[1].Name)
	assert.NoError(t, checks[1].Probe(context.Background()))
}
