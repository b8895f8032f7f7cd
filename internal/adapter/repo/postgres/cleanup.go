package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of the pool the cleanup job needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CleanupService deletes sessions past their expiry. Postgres has no TTL
// index, so this runs on a ticker.
type CleanupService struct {
	Pool Execer
	now  func() time.Time
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool Execer) *CleanupService {
	return &CleanupService{Pool: pool, now: time.Now}
}

// PurgeExpiredSessions removes expired sessions and returns how many were deleted.
func (s *CleanupService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.purge_sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPeriodic purges immediately and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		n, err := s.PurgeExpiredSessions(ctx)
		if err != nil {
			slog.Error("session cleanup failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			slog.Info("expired sessions purged", slog.Int64("deleted", n))
		}
	}
	run()
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			run()
		}
	}
}
