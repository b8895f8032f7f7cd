package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// Sort fields accepted by ListAttempts.
const (
	SortCompletedAt  = "completedAt"
	SortStartedAt    = "startedAt"
	SortAverageScore = "averageScore"
	SortTotalScore   = "totalScore"
	SortName         = "name"
)

// StatusAll lists attempts of every status.
const StatusAll = "all"

// MaxPageLimit caps the page size of ListAttempts.
const MaxPageLimit = 100

// ListQuery selects, orders and pages dashboard rows.
type ListQuery struct {
	Status    string
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	// Limit of 0 returns every matching attempt.
	Limit int
}

// ListPage is one page of dashboard rows.
type ListPage struct {
	Count int              `json:"count"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Items []domain.Attempt `json:"interviews"`
}

// Stats summarises every attempt in the store.
type Stats struct {
	Total        int     `json:"total"`
	Completed    int     `json:"completed"`
	InProgress   int     `json:"inProgress"`
	Abandoned    int     `json:"abandoned"`
	AverageScore float64 `json:"averageScore"`
}

// DashboardService is the read-only interviewer view over attempts.
type DashboardService struct {
	Attempts domain.AttemptRepository
}

// NewDashboardService constructs a DashboardService with its dependencies.
func NewDashboardService(attempts domain.AttemptRepository) DashboardService {
	return DashboardService{Attempts: attempts}
}

func (q ListQuery) normalize() (ListQuery, error) {
	q.Status = strings.TrimSpace(q.Status)
	if q.Status == "" {
		q.Status = StatusAll
	}
	if q.Status != StatusAll && !domain.AttemptStatus(q.Status).Valid() {
		return q, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, q.Status)
	}
	switch q.SortBy {
	case "":
		q.SortBy = SortCompletedAt
	case SortCompletedAt, SortStartedAt, SortAverageScore, SortTotalScore, SortName:
	default:
		return q, fmt.Errorf("%w: unknown sort field %q", domain.ErrInvalidArgument, q.SortBy)
	}
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
		q.SortOrder = "desc"
	case "asc":
		q.SortOrder = "asc"
	default:
		return q, fmt.Errorf("%w: sort order must be asc or desc", domain.ErrInvalidArgument)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 0 {
		return q, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidArgument)
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q, nil
}

// ListAttempts filters in the store, then sorts and pages in memory.
func (s DashboardService) ListAttempts(ctx domain.Context, q ListQuery) (ListPage, error) {
	q, err := q.normalize()
	if err != nil {
		return ListPage{}, err
	}
	f := domain.AttemptFilter{Search: strings.TrimSpace(q.Search)}
	if q.Status != StatusAll {
		f.Status = domain.AttemptStatus(q.Status)
	}
	rows, err := s.Attempts.List(ctx, f)
	if err != nil {
		return ListPage{}, fmt.Errorf("op=dashboard.list: %w", err)
	}
	rows = dedupeAttempts(rows)
	sortAttempts(rows, q.SortBy, q.SortOrder == "asc")

	page := ListPage{Total: len(rows), Page: q.Page, Items: rows}
	if q.Limit > 0 {
		// compare before multiplying so huge pages cannot overflow
		start := len(rows)
		if q.Page-1 <= len(rows)/q.Limit {
			start = min((q.Page-1)*q.Limit, len(rows))
		}
		end := start + q.Limit
		if end > len(rows) {
			end = len(rows)
		}
		page.Items = rows[start:end]
	}
	page.Count = len(page.Items)
	return page, nil
}

// Stats counts attempts per status and averages completed scores.
func (s DashboardService) Stats(ctx domain.Context) (Stats, error) {
	rows, err := s.Attempts.List(ctx, domain.AttemptFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("op=dashboard.stats: %w", err)
	}
	rows = dedupeAttempts(rows)
	var (
		st  Stats
		sum float64
	)
	st.Total = len(rows)
	for _, a := range rows {
		switch a.Status {
		case domain.AttemptCompleted:
			st.Completed++
			sum += a.AverageScore
		case domain.AttemptInProgress:
			st.InProgress++
		case domain.AttemptAbandoned:
			st.Abandoned++
		}
	}
	if st.Completed > 0 {
		st.AverageScore = math.Round(sum/float64(st.Completed)*10) / 10
	}
	return st, nil
}

// dedupeAttempts keeps the first row of every id, preserving order.
func dedupeAttempts(in []domain.Attempt) []domain.Attempt {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, a := range in {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func sortAttempts(rows []domain.Attempt, field string, asc bool) {
	less := func(a, b domain.Attempt) bool {
		switch field {
		case SortStartedAt:
			return a.StartedAt.Before(b.StartedAt)
		case SortAverageScore:
			return a.AverageScore < b.AverageScore
		case SortTotalScore:
			return a.TotalScore < b.TotalScore
		case SortName:
			return strings.ToLower(a.Candidate.Name) < strings.ToLower(b.Candidate.Name)
		default:
			return completedOrStarted(a).Before(completedOrStarted(b))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if asc {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}

func completedOrStarted(a domain.Attempt) time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.StartedAt
}
