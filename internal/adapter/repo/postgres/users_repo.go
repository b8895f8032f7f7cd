package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.UserRepository = (*UserRepo)(nil)

// UserRepo persists users in the users table.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

func (r *UserRepo) Create(ctx domain.Context, u domain.User) (domain.User, error) {
	ctx, span := startSpan(ctx, "users", "Create", "INSERT")
	defer span.End()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	resume, err := marshalResume(u.Resume)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=user.create: %w", err)
	}
	q := `INSERT INTO users (id, name, email, phone, resume, is_active, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, u.ID, u.Name, u.Email, u.Phone, resume, u.IsActive, u.CreatedAt, u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("op=user.create: email %s: %w", u.Email, domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("op=user.create: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx domain.Context, u domain.User) error {
	ctx, span := startSpan(ctx, "users", "Update", "UPDATE")
	defer span.End()
	resume, err := marshalResume(u.Resume)
	if err != nil {
		return fmt.Errorf("op=user.update: %w", err)
	}
	q := `UPDATE users SET name=$2, email=$3, phone=$4, resume=$5, is_active=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, u.ID, u.Name, u.Email, u.Phone, resume, u.IsActive, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("op=user.update: email %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("op=user.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=user.update: %w", domain.ErrUserNotFound)
	}
	return nil
}

func (r *UserRepo) FindByEmail(ctx domain.Context, email string) (domain.User, error) {
	ctx, span := startSpan(ctx, "users", "FindByEmail", "SELECT")
	defer span.End()
	q := `SELECT id, name, email, phone, resume, is_active, created_at, updated_at FROM users WHERE email=$1`
	var (
		u      domain.User
		resume []byte
	)
	err := r.Pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &resume, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("op=user.find_by_email: %w", domain.ErrUserNotFound)
		}
		return domain.User{}, fmt.Errorf("op=user.find_by_email: %w", err)
	}
	if len(resume) > 0 {
		var res domain.Resume
		if err := json.Unmarshal(resume, &res); err != nil {
			return domain.User{}, fmt.Errorf("op=user.find_by_email: decode resume: %w", err)
		}
		u.Resume = &res
	}
	return u, nil
}

func marshalResume(r *domain.Resume) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}
