package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// Record-specific errors. They wrap the sentinels above so callers can match
// either the precise error or its category.
var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	ErrInvalidSlot     = fmt.Errorf("%w: invalid slot", ErrInvalidArgument)
	ErrAttemptClosed   = fmt.Errorf("%w: attempt is no longer open", ErrConflict)
	ErrStaleAttempt    = fmt.Errorf("%w: attempt was modified concurrently", ErrConflict)
)

// Resume holds the text and raw extraction payload of a candidate resume.
type Resume struct {
	Text       string          `json:"text,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	FileType   string          `json:"fileType,omitempty"`
	UploadedAt time.Time       `json:"uploadDate,omitempty"`
}

// User is the identity anchor for sessions and attempts.
// Invariants: Email is trimmed and lower-cased; users are never hard-deleted.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Resume    *Resume   `json:"resumeData,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatPhase enumerates the phases of the candidate chat flow.
type ChatPhase string

const (
	PhaseUpload     ChatPhase = "upload"
	PhaseCollecting ChatPhase = "collecting"
	PhaseReady      ChatPhase = "ready"
	PhaseInterview  ChatPhase = "interview"
	PhaseCompleted  ChatPhase = "completed"
)

// Valid reports whether p is a known phase.
func (p ChatPhase) Valid() bool {
	switch p {
	case PhaseUpload, PhaseCollecting, PhaseReady, PhaseInterview, PhaseCompleted:
		return true
	}
	return false
}

// Session is a resumable snapshot of one user's chat flow state.
// Data is stored as an opaque JSON object and overwritten on every save.
type Session struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Email     string          `json:"email"`
	Data      json.RawMessage `json:"sessionData"`
	IsActive  bool            `json:"isActive"`
	ExpiresAt time.Time       `json:"expiresAt"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AttemptFilter narrows attempt listings. Zero value lists everything.
type AttemptFilter struct {
	Status AttemptStatus
	Search string
	UserID string
}

// EventType names an attempt lifecycle event.
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptCompleted EventType = "attempt.completed"
	EventAttemptAbandoned EventType = "attempt.abandoned"
)

// AttemptEvent is published whenever an attempt changes lifecycle state.
type AttemptEvent struct {
	Type         EventType     `json:"type"`
	AttemptID    string        `json:"attemptId"`
	UserID       string        `json:"userId"`
	Email        string        `json:"email"`
	Status       AttemptStatus `json:"status"`
	TotalScore   float64       `json:"totalScore"`
	AverageScore float64       `json:"averageScore"`
	ResumedFrom  string        `json:"resumedFrom,omitempty"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

// Repositories (ports)

//go:generate mockery --name=UserRepository --with-expecter --filename=user_repository_mock.go
//go:generate mockery --name=SessionRepository --with-expecter --filename=session_repository_mock.go
//go:generate mockery --name=AttemptRepository --with-expecter --filename=attempt_repository_mock.go
//go:generate mockery --name=AIClient --with-expecter --filename=aiclient_mock.go

type UserRepository interface {
	Create(ctx Context, u User) (User, error)
	Update(ctx Context, u User) error
	FindByEmail(ctx Context, email string) (User, error)
}

type SessionRepository interface {
	Create(ctx Context, s Session) (Session, error)
	Update(ctx Context, s Session) error
	// FindActive returns the most recently updated active, unexpired session.
	FindActive(ctx Context, userID string, now time.Time) (Session, error)
	// DeactivateAll flips every active session of the user to inactive and
	// returns how many were changed.
	DeactivateAll(ctx Context, userID string) (int64, error)
}

type AttemptRepository interface {
	Create(ctx Context, a Attempt) (Attempt, error)
	// Update stores a only if a.Version matches the stored version, then
	// bumps the stored version. A mismatch returns ErrStaleAttempt.
	Update(ctx Context, a Attempt) error
	Get(ctx Context, id string) (Attempt, error)
	// FindOpen returns the most recently started in-progress attempt of the user.
	FindOpen(ctx Context, userID string) (Attempt, error)
	List(ctx Context, f AttemptFilter) ([]Attempt, error)
}

// EventPublisher (port)

type EventPublisher interface {
	Publish(ctx Context, ev AttemptEvent) error
}

// AIClient (port)

type AIClient interface {
	// Provider names the upstream used for logging and metrics.
	Provider() string
	// ChatJSON returns the model reply to a system/user prompt pair.
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// TextExtractor (port)
// Extract returns plain text for an uploaded document; implementations may
// call external services such as Apache Tika.
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

// Context is an alias so ports read the same across packages.
type Context = context.Context

// Evaluation is the score of one answer.
type Evaluation struct {
	Score    float64 `json:"score"`
	Accuracy int     `json:"accuracy"`
	Feedback string  `json:"feedback"`
	Provider string  `json:"provider"`
	// Error is "service_unavailable" when the score came from the local heuristic.
	Error string `json:"error,omitempty"`
}

// AnswerInput is one answer submitted for scoring.
type AnswerInput struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Difficulty Difficulty `json:"difficulty"`
	TimeTaken  int        `json:"timeTaken"`
}

// AnswerEvaluator (port)
type AnswerEvaluator interface {
	Evaluate(ctx Context, in AnswerInput) (Evaluation, error)
}

// QuestionRequest asks for the next question of a tier.
type QuestionRequest struct {
	Difficulty Difficulty `json:"difficulty"`
	Asked      []string   `json:"asked"`
	ResumeText string     `json:"resumeText,omitempty"`
}

// QuestionSupplier (port)
type QuestionSupplier interface {
	Next(ctx Context, req QuestionRequest) (string, error)
}

// Clock (port)
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
