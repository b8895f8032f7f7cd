// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// staleRetries bounds how often a write that lost a version race is replayed
// against a fresh read.
const staleRetries = 20

// TrackerService is the single source of truth for how far a candidate has
// progressed through their attempt. All writes recompute the aggregates.
type TrackerService struct {
	Users    domain.UserRepository
	Attempts domain.AttemptRepository
	Events   domain.EventPublisher
	Clock    domain.Clock
	// AllowNewSession gates the abandon-and-recreate completion path.
	AllowNewSession bool
}

// NewTrackerService constructs a TrackerService with its dependencies.
func NewTrackerService(users domain.UserRepository, attempts domain.AttemptRepository, events domain.EventPublisher, clock domain.Clock, allowNewSession bool) TrackerService {
	if clock == nil {
		clock = domain.SystemClock
	}
	return TrackerService{Users: users, Attempts: attempts, Events: events, Clock: clock, AllowNewSession: allowNewSession}
}

// StartResult is the outcome of StartAttempt.
type StartResult struct {
	Attempt domain.Attempt
	// Resumed is true when an already open attempt was returned.
	Resumed bool
}

func (s TrackerService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// retryStale runs op until it stops failing with domain.ErrStaleAttempt.
// op must re-read the attempt on every call.
func retryStale(ctx domain.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Millisecond
	eb.MaxInterval = 50 * time.Millisecond
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, staleRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, domain.ErrStaleAttempt) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// StartAttempt returns the user's open attempt, or creates one. A nil info
// snapshots the candidate from the stored user.
func (s TrackerService) StartAttempt(ctx domain.Context, email string, info *domain.CandidateInfo) (StartResult, error) {
	u, err := activeUser(ctx, s.Users, email)
	if err != nil {
		return StartResult{}, fmt.Errorf("op=tracker.start: %w", err)
	}

	var (
		open  domain.Attempt
		found bool
	)
	err = retryStale(ctx, func() error {
		var err error
		open, err = s.Attempts.FindOpen(ctx, u.ID)
		if errors.Is(err, domain.ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("find open: %w", err)
		}
		found = true
		open.ResumeCount++
		open.UpdatedAt = s.now()
		if err := s.Attempts.Update(ctx, open); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		open.Version++
		return nil
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("op=tracker.start: %w", err)
	}
	if found {
		slog.Info("attempt resumed", slog.String("attempt_id", open.ID), slog.Int("resume_count", open.ResumeCount))
		return StartResult{Attempt: open, Resumed: true}, nil
	}

	now := s.now()
	a := domain.Attempt{
		UserID:    u.ID,
		Candidate: snapshotCandidate(u, info),
		Questions: []domain.Slot{},
		Status:    domain.AttemptInProgress,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.Attempts.Create(ctx, a)
	if err != nil {
		return StartResult{}, fmt.Errorf("op=tracker.start: create: %w", err)
	}
	slog.Info("attempt started", slog.String("attempt_id", created.ID), slog.String("user_id", u.ID))
	s.publish(ctx, domain.EventAttemptStarted, created)
	return StartResult{Attempt: created}, nil
}

// snapshotCandidate fills blank fields of info from the live user record.
func snapshotCandidate(u domain.User, info *domain.CandidateInfo) domain.CandidateInfo {
	c := domain.CandidateInfo{Name: u.Name, Email: u.Email, Phone: u.Phone}
	if u.Resume != nil {
		c.ResumeText = u.Resume.Text
	}
	if info == nil {
		return c
	}
	if info.Name != "" {
		c.Name = info.Name
	}
	if info.Email != "" {
		c.Email = NormalizeEmail(info.Email)
	}
	if info.Phone != "" {
		c.Phone = info.Phone
	}
	if info.ResumeText != "" {
		c.ResumeText = info.ResumeText
	}
	return c
}

// RecordQuestion upserts one slot of an open attempt and returns the merged slot.
// Repeating the same call leaves the attempt unchanged.
func (s TrackerService) RecordQuestion(ctx domain.Context, attemptID string, p domain.SlotPatch) (domain.Slot, error) {
	if err := p.Validate(); err != nil {
		return domain.Slot{}, err
	}
	var slot domain.Slot
	err := retryStale(ctx, func() error {
		a, err := s.Attempts.Get(ctx, attemptID)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return domain.ErrAttemptClosed
		}
		if slot, err = a.UpsertSlot(p); err != nil {
			return err
		}
		a.RecomputeScores()
		a.UpdatedAt = s.now()
		return s.Attempts.Update(ctx, a)
	})
	if err != nil {
		return domain.Slot{}, fmt.Errorf("op=tracker.record_question: %w", err)
	}
	return slot, nil
}

// CompleteAttempt merges the final answers with answered forced true and
// finalizes the attempt. When createNewSession is set, enabled, and the
// attempt was resumed, the source is marked abandoned and a fresh completed
// record is created and returned.
func (s TrackerService) CompleteAttempt(ctx domain.Context, attemptID string, answers []domain.SlotPatch, createNewSession bool) (domain.Attempt, error) {
	for _, p := range answers {
		if err := p.Validate(); err != nil {
			return domain.Attempt{}, err
		}
	}
	var (
		a     domain.Attempt
		fresh *domain.Attempt
	)
	err := retryStale(ctx, func() error {
		var err error
		if a, err = s.Attempts.Get(ctx, attemptID); err != nil {
			return err
		}
		if !a.Status.Open() {
			return domain.ErrAttemptClosed
		}
		now := s.now()
		if createNewSession && s.AllowNewSession && a.ResumeCount > 0 {
			fresh, err = s.abandonForNew(ctx, &a, answers, now)
			return err
		}
		fresh = nil
		if err := a.Finalize(answers, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := s.Attempts.Update(ctx, a); err != nil {
			return err
		}
		a.Version++
		return nil
	})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=tracker.complete: %w", err)
	}
	if fresh != nil {
		return s.createCompleted(ctx, a, *fresh)
	}
	slog.Info("attempt completed", slog.String("attempt_id", a.ID), slog.Float64("average_score", a.AverageScore))
	s.publish(ctx, domain.EventAttemptCompleted, a)
	return a, nil
}

// abandonForNew builds the completed copy of src and marks src abandoned.
// src keeps its partial history for audit.
func (s TrackerService) abandonForNew(ctx domain.Context, src *domain.Attempt, answers []domain.SlotPatch, now time.Time) (*domain.Attempt, error) {
	fresh := src.Clone()
	fresh.ID = ""
	fresh.ResumedFrom = src.ID
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	fresh.Version = 0
	if err := fresh.Finalize(answers, now); err != nil {
		return nil, err
	}
	src.Status = domain.AttemptAbandoned
	src.RecomputeScores()
	src.UpdatedAt = now
	if err := s.Attempts.Update(ctx, *src); err != nil {
		return nil, fmt.Errorf("abandon source: %w", err)
	}
	src.Version++
	return &fresh, nil
}

func (s TrackerService) createCompleted(ctx domain.Context, src, fresh domain.Attempt) (domain.Attempt, error) {
	created, err := s.Attempts.Create(ctx, fresh)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=tracker.complete_new: create: %w", err)
	}
	slog.Info("attempt completed as new record",
		slog.String("attempt_id", created.ID),
		slog.String("abandoned_id", src.ID),
		slog.Float64("average_score", created.AverageScore))
	s.publish(ctx, domain.EventAttemptAbandoned, src)
	s.publish(ctx, domain.EventAttemptCompleted, created)
	return created, nil
}

// GetOpenAttempt returns the user's most recently started open attempt.
// The boolean is false when there is none, including for unknown or
// deactivated users.
func (s TrackerService) GetOpenAttempt(ctx domain.Context, email string) (domain.Attempt, bool, error) {
	u, err := activeUser(ctx, s.Users, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("op=tracker.get_open: %w", err)
	}
	a, err := s.Attempts.FindOpen(ctx, u.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("op=tracker.get_open: %w", err)
	}
	return a, true, nil
}

// GetAttempt is a point lookup by id.
func (s TrackerService) GetAttempt(ctx domain.Context, attemptID string) (domain.Attempt, error) {
	if attemptID == "" {
		return domain.Attempt{}, fmt.Errorf("%w: attempt id is required", domain.ErrInvalidArgument)
	}
	a, err := s.Attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=tracker.get: %w", err)
	}
	return a, nil
}

// ListForUser returns every attempt of the user, newest first.
func (s TrackerService) ListForUser(ctx domain.Context, email string) ([]domain.Attempt, error) {
	u, err := activeUser(ctx, s.Users, email)
	if err != nil {
		return nil, fmt.Errorf("op=tracker.list_for_user: %w", err)
	}
	list, err := s.Attempts.List(ctx, domain.AttemptFilter{UserID: u.ID})
	if err != nil {
		return nil, fmt.Errorf("op=tracker.list_for_user: %w", err)
	}
	return list, nil
}

// publish is best-effort; failures are logged and never returned.
func (s TrackerService) publish(ctx domain.Context, t domain.EventType, a domain.Attempt) {
	if s.Events == nil {
		return
	}
	ev := domain.AttemptEvent{
		Type:         t,
		AttemptID:    a.ID,
		UserID:       a.UserID,
		Email:        a.Candidate.Email,
		Status:       a.Status,
		TotalScore:   a.TotalScore,
		AverageScore: a.AverageScore,
		ResumedFrom:  a.ResumedFrom,
		OccurredAt:   s.now(),
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		slog.Warn("attempt event publish failed",
			slog.String("type", string(t)),
			slog.String("attempt_id", a.ID),
			slog.Any("error", err))
	}
}
