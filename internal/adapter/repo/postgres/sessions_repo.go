package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.SessionRepository = (*SessionRepo)(nil)

// SessionRepo persists chat sessions in the sessions table.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) (domain.Session, error) {
	ctx, span := startSpan(ctx, "sessions", "Create", "INSERT")
	defer span.End()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	q := `INSERT INTO sessions (id, user_id, email, data, is_active, expires_at, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, s.ID, s.UserID, s.Email, sessionData(s.Data), s.IsActive, s.ExpiresAt, s.CreatedAt, s.UpdatedAt); err != nil {
		return domain.Session{}, fmt.Errorf("op=session.create: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Update(ctx domain.Context, s domain.Session) error {
	ctx, span := startSpan(ctx, "sessions", "Update", "UPDATE")
	defer span.End()
	q := `UPDATE sessions SET email=$2, data=$3, is_active=$4, expires_at=$5, updated_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Email, sessionData(s.Data), s.IsActive, s.ExpiresAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("op=session.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.update: %w", domain.ErrSessionNotFound)
	}
	return nil
}

func (r *SessionRepo) FindActive(ctx domain.Context, userID string, now time.Time) (domain.Session, error) {
	ctx, span := startSpan(ctx, "sessions", "FindActive", "SELECT")
	defer span.End()
	q := `SELECT id, user_id, email, data, is_active, expires_at, created_at, updated_at FROM sessions
WHERE user_id=$1 AND is_active AND expires_at > $2 ORDER BY updated_at DESC LIMIT 1`
	var (
		s    domain.Session
		data []byte
	)
	err := r.Pool.QueryRow(ctx, q, userID, now).Scan(&s.ID, &s.UserID, &s.Email, &data, &s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("op=session.find_active: %w", domain.ErrSessionNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.find_active: %w", err)
	}
	s.Data = json.RawMessage(data)
	return s, nil
}

func (r *SessionRepo) DeactivateAll(ctx domain.Context, userID string) (int64, error) {
	ctx, span := startSpan(ctx, "sessions", "DeactivateAll", "UPDATE")
	defer span.End()
	q := `UPDATE sessions SET is_active=FALSE, updated_at=$2 WHERE user_id=$1 AND is_active`
	tag, err := r.Pool.Exec(ctx, q, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=session.deactivate_all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func sessionData(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
