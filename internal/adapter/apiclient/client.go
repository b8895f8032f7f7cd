// Package apiclient is the candidate client's view of the interview API.
// It implements chatflow.Backend and chatflow.SessionStore over REST.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interviewer/internal/chatflow"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

var (
	_ chatflow.Backend      = (*Client)(nil)
	_ chatflow.SessionStore = (*Client)(nil)
)

// Options configures the client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures (transport errors, 502-504).
	MaxRetries uint64
	// RetryWait is the initial exponential backoff interval.
	RetryWait  time.Duration
	HTTPClient *http.Client
}

// Client talks to the interview API.
type Client struct {
	opts Options
	hc   *http.Client
}

// New constructs a client. A missing HTTPClient gets an otelhttp transport.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, hc: hc}
}

// APIError is a non-2xx reply. It unwraps to the matching domain sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("api status %d: %s", e.Status, e.Message) }

// Unwrap maps the status back to the domain error the server started from.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrInvalidArgument
	case http.StatusUnauthorized, http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return domain.ErrUpstreamUnavailable
	case http.StatusGatewayTimeout:
		return domain.ErrUpstreamTimeout
	case http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return domain.ErrInvalidArgument
	}
	return domain.ErrInternal
}

func transient(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	// retry is false for calls that must not run twice.
	retry bool
}

func jsonRequest(method, path string, v any, retry bool) (request, error) {
	var b []byte
	if v != nil {
		var err error
		if b, err = json.Marshal(v); err != nil {
			return request{}, err
		}
	}
	return request{method: method, path: path, body: b, contentType: "application/json", retry: retry}, nil
}

// do sends req and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op string, req request, out any) error {
	endpoint := c.opts.BaseURL + req.path
	send := func() error {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		r, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Accept", "application/json")
		if req.body != nil {
			r.Header.Set("Content-Type", req.contentType)
		}
		resp, err := c.hc.Do(r)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return backoff.Permanent(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var eb struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(raw, &eb)
			apiErr := &APIError{Status: resp.StatusCode, Message: eb.Message}
			if transient(resp.StatusCode) {
				slog.Warn("api transient failure", slog.String("op", op), slog.Int("status", resp.StatusCode))
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode: %v", domain.ErrSchemaInvalid, err))
		}
		return nil
	}

	retries := c.opts.MaxRetries
	if !req.retry {
		retries = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)
	if err := backoff.Retry(send, policy); err != nil {
		return fmt.Errorf("op=apiclient.%s: %w", op, err)
	}
	return nil
}

// ParseResume uploads the resume as multipart field "resume".
func (c *Client) ParseResume(ctx context.Context, fileName string, data []byte) (usecase.ParsedResume, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("resume", fileName)
	if err != nil {
		return usecase.ParsedResume{}, fmt.Errorf("op=apiclient.parse_resume: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return usecase.ParsedResume{}, fmt.Errorf("op=apiclient.parse_resume: %w", err)
	}
	if err := mw.Close(); err != nil {
		return usecase.ParsedResume{}, fmt.Errorf("op=apiclient.parse_resume: %w", err)
	}
	var out usecase.ParsedResume
	req := request{method: http.MethodPost, path: "/api/resumes/parse", body: buf.Bytes(), contentType: mw.FormDataContentType(), retry: true}
	if err := c.do(ctx, "parse_resume", req, &out); err != nil {
		return usecase.ParsedResume{}, err
	}
	return out, nil
}

// SaveUser creates or updates the candidate profile.
func (c *Client) SaveUser(ctx context.Context, f usecase.CandidateFields, resume *domain.Resume) error {
	req, err := jsonRequest(http.MethodPost, "/api/users/save", map[string]any{
		"name": f.Name, "email": f.Email, "phone": f.Phone, "resumeData": resume,
	}, true)
	if err != nil {
		return fmt.Errorf("op=apiclient.save_user: %w", err)
	}
	return c.do(ctx, "save_user", req, nil)
}

// StartAttempt creates an attempt or resumes the open one.
func (c *Client) StartAttempt(ctx context.Context, email string, info domain.CandidateInfo) (domain.Attempt, error) {
	req, err := jsonRequest(http.MethodPost, "/api/interviews/create", map[string]any{"email": email, "candidateInfo": info}, true)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=apiclient.start_attempt: %w", err)
	}
	var out struct {
		Resumed   bool           `json:"resumed"`
		Interview domain.Attempt `json:"interview"`
	}
	if err := c.do(ctx, "start_attempt", req, &out); err != nil {
		return domain.Attempt{}, err
	}
	return out.Interview, nil
}

// NextQuestion asks for the next question of a tier.
func (c *Client) NextQuestion(ctx context.Context, q domain.QuestionRequest) (usecase.NextQuestion, error) {
	req, err := jsonRequest(http.MethodPost, "/api/questions/next", q, true)
	if err != nil {
		return usecase.NextQuestion{}, fmt.Errorf("op=apiclient.next_question: %w", err)
	}
	var out usecase.NextQuestion
	if err := c.do(ctx, "next_question", req, &out); err != nil {
		return usecase.NextQuestion{}, err
	}
	return out, nil
}

// RecordQuestion upserts one slot.
func (c *Client) RecordQuestion(ctx context.Context, attemptID string, p domain.SlotPatch) error {
	req, err := jsonRequest(http.MethodPut, "/api/interviews/"+url.PathEscape(attemptID)+"/question", map[string]any{"questionData": p}, true)
	if err != nil {
		return fmt.Errorf("op=apiclient.record_question: %w", err)
	}
	return c.do(ctx, "record_question", req, nil)
}

// Evaluate scores one answer.
func (c *Client) Evaluate(ctx context.Context, in domain.AnswerInput) (domain.Evaluation, error) {
	req, err := jsonRequest(http.MethodPost, "/api/answers/evaluate", in, true)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=apiclient.evaluate: %w", err)
	}
	var out domain.Evaluation
	if err := c.do(ctx, "evaluate", req, &out); err != nil {
		return domain.Evaluation{}, err
	}
	return out, nil
}

// CompleteAttempt finalises the attempt in place. It is never retried, a
// second call would hit a closed attempt.
func (c *Client) CompleteAttempt(ctx context.Context, attemptID string, answers []domain.SlotPatch) (domain.Attempt, error) {
	req, err := jsonRequest(http.MethodPut, "/api/interviews/"+url.PathEscape(attemptID)+"/complete", map[string]any{"allAnswers": answers}, false)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=apiclient.complete_attempt: %w", err)
	}
	var out struct {
		Interview domain.Attempt `json:"interview"`
	}
	if err := c.do(ctx, "complete_attempt", req, &out); err != nil {
		return domain.Attempt{}, err
	}
	return out.Interview, nil
}

// Summary fetches the final score breakdown.
func (c *Client) Summary(ctx context.Context, attemptID string) (usecase.Summary, error) {
	req := request{method: http.MethodPost, path: "/api/interviews/" + url.PathEscape(attemptID) + "/summary", retry: true}
	var out usecase.Summary
	if err := c.do(ctx, "summary", req, &out); err != nil {
		return usecase.Summary{}, err
	}
	return out, nil
}

// SaveSession overwrites the candidate's session blob.
func (c *Client) SaveSession(ctx context.Context, email string, data json.RawMessage) error {
	req, err := jsonRequest(http.MethodPost, "/api/sessions/save", map[string]any{"email": email, "sessionData": data}, true)
	if err != nil {
		return fmt.Errorf("op=apiclient.save_session: %w", err)
	}
	return c.do(ctx, "save_session", req, nil)
}

// LoadSession returns the active session blob. A missing user or session is
// not an error.
func (c *Client) LoadSession(ctx context.Context, email string) (json.RawMessage, bool, error) {
	req := request{method: http.MethodGet, path: "/api/sessions/get/" + url.PathEscape(email), retry: true}
	var out struct {
		Session struct {
			Data json.RawMessage `json:"sessionData"`
		} `json:"session"`
	}
	if err := c.do(ctx, "load_session", req, &out); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out.Session.Data, len(out.Session.Data) > 0, nil
}
