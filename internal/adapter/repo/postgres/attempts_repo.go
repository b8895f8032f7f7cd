package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.AttemptRepository = (*AttemptRepo)(nil)

// AttemptRepo stores each attempt as a JSONB document. Columns used for
// filtering are denormalised next to the document.
type AttemptRepo struct{ Pool PgxPool }

// NewAttemptRepo constructs an AttemptRepo with the given pool.
func NewAttemptRepo(p PgxPool) *AttemptRepo { return &AttemptRepo{Pool: p} }

func (r *AttemptRepo) Create(ctx domain.Context, a domain.Attempt) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, "attempts", "Create", "INSERT")
	defer span.End()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("op=attempt.create: %w", err)
	}
	q := `INSERT INTO attempts (id, user_id, status, candidate_name, candidate_email, candidate_phone, started_at, doc, updated_at, version)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = r.Pool.Exec(ctx, q, a.ID, a.UserID, string(a.Status), a.Candidate.Name, a.Candidate.Email, a.Candidate.Phone, a.StartedAt, doc, time.Now().UTC(), a.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Attempt{}, fmt.Errorf("op=attempt.create: id %s: %w", a.ID, domain.ErrConflict)
		}
		return domain.Attempt{}, fmt.Errorf("op=attempt.create: %w", err)
	}
	return a, nil
}

func (r *AttemptRepo) Update(ctx domain.Context, a domain.Attempt) error {
	ctx, span := startSpan(ctx, "attempts", "Update", "UPDATE")
	defer span.End()
	expected := a.Version
	a.Version++
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("op=attempt.update: %w", err)
	}
	q := `UPDATE attempts SET status=$2, candidate_name=$3, candidate_email=$4, candidate_phone=$5, doc=$6, updated_at=$7, version=version+1
WHERE id=$1 AND version=$8`
	tag, err := r.Pool.Exec(ctx, q, a.ID, string(a.Status), a.Candidate.Name, a.Candidate.Email, a.Candidate.Phone, doc, time.Now().UTC(), expected)
	if err != nil {
		return fmt.Errorf("op=attempt.update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM attempts WHERE id=$1)`, a.ID).Scan(&exists); err != nil {
		return fmt.Errorf("op=attempt.update: %w", err)
	}
	if exists {
		return fmt.Errorf("op=attempt.update: version %d: %w", expected, domain.ErrStaleAttempt)
	}
	return fmt.Errorf("op=attempt.update: %w", domain.ErrAttemptNotFound)
}

func (r *AttemptRepo) Get(ctx domain.Context, id string) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, "attempts", "Get", "SELECT")
	defer span.End()
	return r.scanOne(r.Pool.QueryRow(ctx, `SELECT doc FROM attempts WHERE id=$1`, id), "op=attempt.get")
}

func (r *AttemptRepo) FindOpen(ctx domain.Context, userID string) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, "attempts", "FindOpen", "SELECT")
	defer span.End()
	q := `SELECT doc FROM attempts WHERE user_id=$1 AND status=$2 ORDER BY started_at DESC LIMIT 1`
	return r.scanOne(r.Pool.QueryRow(ctx, q, userID, string(domain.AttemptInProgress)), "op=attempt.find_open")
}

func (r *AttemptRepo) scanOne(row pgx.Row, op string) (domain.Attempt, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Attempt{}, fmt.Errorf("%s: %w", op, domain.ErrAttemptNotFound)
		}
		return domain.Attempt{}, fmt.Errorf("%s: %w", op, err)
	}
	var a domain.Attempt
	if err := json.Unmarshal(doc, &a); err != nil {
		return domain.Attempt{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return a, nil
}

// List returns attempts matching f, newest first.
func (r *AttemptRepo) List(ctx domain.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
	ctx, span := startSpan(ctx, "attempts", "List", "SELECT")
	defer span.End()
	q, args := listQuery(f)
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=attempt.list: %w", err)
	}
	defer rows.Close()
	out := []domain.Attempt{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("op=attempt.list: %w", err)
		}
		var a domain.Attempt
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("op=attempt.list: decode: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=attempt.list: %w", err)
	}
	return out, nil
}

func listQuery(f domain.AttemptFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(candidate_name ILIKE $%d OR candidate_email ILIKE $%d OR candidate_phone ILIKE $%d)", n, n, n))
	}
	q := `SELECT doc FROM attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY started_at DESC", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
