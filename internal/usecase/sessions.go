package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// Session save actions.
const (
	SessionCreated = "created"
	SessionUpdated = "updated"
)

// DefaultSessionTTL is how long a session lives after its last write.
const DefaultSessionTTL = 24 * time.Hour

// SessionService persists the candidate's chat flow snapshot.
type SessionService struct {
	Users    domain.UserRepository
	Sessions domain.SessionRepository
	Clock    domain.Clock
	TTL      time.Duration
}

// NewSessionService constructs a SessionService with its dependencies.
func NewSessionService(users domain.UserRepository, sessions domain.SessionRepository, clock domain.Clock, ttl time.Duration) SessionService {
	if clock == nil {
		clock = domain.SystemClock
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return SessionService{Users: users, Sessions: sessions, Clock: clock, TTL: ttl}
}

// validateSessionData requires a JSON object and a known chatPhase when set.
func validateSessionData(data json.RawMessage) error {
	var probe map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &probe) != nil || probe == nil {
		return fmt.Errorf("%w: sessionData must be a JSON object", domain.ErrInvalidArgument)
	}
	raw, ok := probe["chatPhase"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var phase domain.ChatPhase
	if err := json.Unmarshal(raw, &phase); err != nil || !phase.Valid() {
		return fmt.Errorf("%w: unknown chatPhase %s", domain.ErrInvalidArgument, string(raw))
	}
	return nil
}

// Save overwrites the active session of the user, or creates one, and pushes
// its expiry forward. The string is SessionCreated or SessionUpdated.
func (s SessionService) Save(ctx domain.Context, email string, data json.RawMessage) (domain.Session, string, error) {
	if err := validateSessionData(data); err != nil {
		return domain.Session{}, "", err
	}
	u, err := activeUser(ctx, s.Users, email)
	if err != nil {
		return domain.Session{}, "", err
	}
	now := s.Clock.Now().UTC()
	expires := now.Add(s.ttl())

	cur, err := s.Sessions.FindActive(ctx, u.ID, now)
	switch {
	case err == nil:
		cur.Data = data
		cur.Email = u.Email
		cur.ExpiresAt = expires
		cur.UpdatedAt = now
		if err := s.Sessions.Update(ctx, cur); err != nil {
			return domain.Session{}, "", fmt.Errorf("op=sessions.save: update: %w", err)
		}
		return cur, SessionUpdated, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Session{}, "", fmt.Errorf("op=sessions.save: find: %w", err)
	}

	created, err := s.Sessions.Create(ctx, domain.Session{
		UserID:    u.ID,
		Email:     u.Email,
		Data:      data,
		IsActive:  true,
		ExpiresAt: expires,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("op=sessions.save: create: %w", err)
	}
	slog.Debug("session created", slog.String("session_id", created.ID), slog.String("user_id", u.ID))
	return created, SessionCreated, nil
}

// Get returns the most recent active, unexpired session of the user.
func (s SessionService) Get(ctx domain.Context, email string) (domain.Session, error) {
	u, err := activeUser(ctx, s.Users, email)
	if err != nil {
		return domain.Session{}, err
	}
	sess, err := s.Sessions.FindActive(ctx, u.ID, s.Clock.Now().UTC())
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=sessions.get: %w", err)
	}
	return sess, nil
}

// Delete deactivates every active session of the user.
func (s SessionService) Delete(ctx domain.Context, email string) error {
	u, err := activeUser(ctx, s.Users, email)
	if err != nil {
		return err
	}
	n, err := s.Sessions.DeactivateAll(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("op=sessions.delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("op=sessions.delete: %w", domain.ErrSessionNotFound)
	}
	slog.Info("sessions deactivated", slog.String("user_id", u.ID), slog.Int64("count", n))
	return nil
}

func (s SessionService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}
