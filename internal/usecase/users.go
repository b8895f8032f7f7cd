package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,15}$`)
)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address.
func ValidEmail(email string) bool { return emailPattern.MatchString(strings.TrimSpace(email)) }

// ValidPhone reports whether phone has 10 to 15 digits, spaces, dashes or brackets.
func ValidPhone(phone string) bool { return phonePattern.MatchString(strings.TrimSpace(phone)) }

// ValidName reports whether name has at least two characters once trimmed.
func ValidName(name string) bool { return len([]rune(strings.TrimSpace(name))) >= 2 }

// SaveUserInput is the profile submitted by the candidate.
type SaveUserInput struct {
	Name   string
	Email  string
	Phone  string
	Resume *domain.Resume
}

// UserService manages candidate profiles.
type UserService struct {
	Users domain.UserRepository
	Clock domain.Clock
}

// NewUserService constructs a UserService with its dependencies.
func NewUserService(users domain.UserRepository, clock domain.Clock) UserService {
	if clock == nil {
		clock = domain.SystemClock
	}
	return UserService{Users: users, Clock: clock}
}

func validateProfile(in SaveUserInput) error {
	var problems []string
	if !ValidName(in.Name) {
		problems = append(problems, "name must be at least 2 characters")
	}
	if !ValidEmail(in.Email) {
		problems = append(problems, "email is invalid")
	}
	if !ValidPhone(in.Phone) {
		problems = append(problems, "phone is invalid")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

// Save creates the user on first submission and updates it afterwards.
// The boolean reports whether a new user was created.
func (s UserService) Save(ctx domain.Context, in SaveUserInput) (domain.User, bool, error) {
	if err := validateProfile(in); err != nil {
		return domain.User{}, false, err
	}
	email := NormalizeEmail(in.Email)
	now := s.Clock.Now().UTC()
	if in.Resume != nil && in.Resume.UploadedAt.IsZero() {
		in.Resume.UploadedAt = now
	}

	u, err := s.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		u.Name = strings.TrimSpace(in.Name)
		u.Phone = strings.TrimSpace(in.Phone)
		if in.Resume != nil {
			u.Resume = in.Resume
		}
		u.IsActive = true
		u.UpdatedAt = now
		if err := s.Users.Update(ctx, u); err != nil {
			return domain.User{}, false, fmt.Errorf("op=users.save: update: %w", err)
		}
		slog.Info("user updated", slog.String("user_id", u.ID))
		return u, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, false, fmt.Errorf("op=users.save: find: %w", err)
	}

	created, err := s.Users.Create(ctx, domain.User{
		Name:      strings.TrimSpace(in.Name),
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Resume:    in.Resume,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("op=users.save: create: %w", err)
	}
	slog.Info("user created", slog.String("user_id", created.ID))
	return created, true, nil
}

// GetByEmail returns the active user with the given email.
func (s UserService) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	return activeUser(ctx, s.Users, email)
}

func activeUser(ctx domain.Context, users domain.UserRepository, email string) (domain.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return domain.User{}, fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	u, err := users.FindByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=users.get: %w", err)
	}
	if !u.IsActive {
		return domain.User{}, fmt.Errorf("op=users.get: %w", domain.ErrUserNotFound)
	}
	return u, nil
}
