// Package memory provides in-process repositories for development and tests.
//
// Records are copied on every read and write so callers never share state
// with the store.
package memory

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var (
	_ domain.UserRepository    = (*UserRepo)(nil)
	_ domain.SessionRepository = (*SessionRepo)(nil)
	_ domain.AttemptRepository = (*AttemptRepo)(nil)
)

// Store holds all collections behind one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	sessions map[string]domain.Session
	attempts map[string]domain.Attempt
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    map[string]domain.User{},
		sessions: map[string]domain.Session{},
		attempts: map[string]domain.Attempt{},
		now:      time.Now,
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Sessions returns the session repository view of the store.
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// Attempts returns the attempt repository view of the store.
func (s *Store) Attempts() *AttemptRepo { return &AttemptRepo{s: s} }

// UserRepo implements domain.UserRepository.
type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ domain.Context, u domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return domain.User{}, fmt.Errorf("op=memory.users.create: email %s: %w", u.Email, domain.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	r.s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (r *UserRepo) Update(_ domain.Context, u domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return fmt.Errorf("op=memory.users.update: %w", domain.ErrUserNotFound)
	}
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UserRepo) FindByEmail(_ domain.Context, email string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, fmt.Errorf("op=memory.users.find_by_email: %w", domain.ErrUserNotFound)
}

// SessionRepo implements domain.SessionRepository.
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(_ domain.Context, sess domain.Session) (domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	r.s.sessions[sess.ID] = cloneSession(sess)
	return cloneSession(sess), nil
}

func (r *SessionRepo) Update(_ domain.Context, sess domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.ID]; !ok {
		return fmt.Errorf("op=memory.sessions.update: %w", domain.ErrSessionNotFound)
	}
	r.s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (r *SessionRepo) FindActive(_ domain.Context, userID string, now time.Time) (domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		best  domain.Session
		found bool
	)
	for id, sess := range r.s.sessions {
		// expired sessions are purged lazily, mirroring a TTL index
		if sess.Expired(now) {
			delete(r.s.sessions, id)
			continue
		}
		if sess.UserID != userID || !sess.IsActive {
			continue
		}
		if !found || sess.UpdatedAt.After(best.UpdatedAt) {
			best, found = sess, true
		}
	}
	if !found {
		return domain.Session{}, fmt.Errorf("op=memory.sessions.find_active: %w", domain.ErrSessionNotFound)
	}
	return cloneSession(best), nil
}

func (r *SessionRepo) DeactivateAll(_ domain.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			sess.UpdatedAt = r.s.now().UTC()
			r.s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

// AttemptRepo implements domain.AttemptRepository.
type AttemptRepo struct{ s *Store }

func (r *AttemptRepo) Create(_ domain.Context, a domain.Attempt) (domain.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, ok := r.s.attempts[a.ID]; ok {
		return domain.Attempt{}, fmt.Errorf("op=memory.attempts.create: id %s: %w", a.ID, domain.ErrConflict)
	}
	r.s.attempts[a.ID] = a.Clone()
	return a.Clone(), nil
}

func (r *AttemptRepo) Update(_ domain.Context, a domain.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.attempts[a.ID]
	if !ok {
		return fmt.Errorf("op=memory.attempts.update: %w", domain.ErrAttemptNotFound)
	}
	if cur.Version != a.Version {
		return fmt.Errorf("op=memory.attempts.update: version %d, stored %d: %w", a.Version, cur.Version, domain.ErrStaleAttempt)
	}
	a.Version++
	r.s.attempts[a.ID] = a.Clone()
	return nil
}

func (r *AttemptRepo) Get(_ domain.Context, id string) (domain.Attempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.attempts[id]
	if !ok {
		return domain.Attempt{}, fmt.Errorf("op=memory.attempts.get: %w", domain.ErrAttemptNotFound)
	}
	return a.Clone(), nil
}

func (r *AttemptRepo) FindOpen(_ domain.Context, userID string) (domain.Attempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		best  domain.Attempt
		found bool
	)
	for _, a := range r.s.attempts {
		if a.UserID != userID || !a.Status.Open() {
			continue
		}
		if !found || a.StartedAt.After(best.StartedAt) {
			best, found = a, true
		}
	}
	if !found {
		return domain.Attempt{}, fmt.Errorf("op=memory.attempts.find_open: %w", domain.ErrAttemptNotFound)
	}
	return best.Clone(), nil
}

// List returns matching attempts ordered by start time, newest first.
func (r *AttemptRepo) List(_ domain.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Attempt, 0, len(r.s.attempts))
	for _, a := range r.s.attempts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if !a.MatchesSearch(f.Search) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func cloneUser(u domain.User) domain.User {
	u.Email = strings.ToLower(u.Email)
	if u.Resume != nil {
		r := *u.Resume
		r.Data = bytes.Clone(u.Resume.Data)
		u.Resume = &r
	}
	return u
}

func cloneSession(s domain.Session) domain.Session {
	s.Data = bytes.Clone(s.Data)
	return s
}
