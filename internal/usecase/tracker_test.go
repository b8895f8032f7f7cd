package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

func TestTracker_StartAttempt_CreatesWithUserSnapshot(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "a@x.com")

	res, err := f.tracker.StartAttempt(context.Background(), " A@X.com ", nil)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	a := res.Attempt
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, u.ID, a.UserID)
	assert.Equal(t, domain.AttemptInProgress, a.Status)
	assert.Empty(t, a.Questions)
	assert.Equal(t, "Ada Lovelace", a.Candidate.Name)
	assert.Equal(t, "a@x.com", a.Candidate.Email)
	assert.Contains(t, a.Candidate.ResumeText, "Analytical")
	assert.Equal(t, f.clock.Now(), a.StartedAt)
	assert.Equal(t, []domain.EventType{domain.EventAttemptStarted}, f.events.types())
}

func TestTracker_StartAttempt_CandidateInfoOverridesUser(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")

	res, err := f.tracker.StartAttempt(context.Background(), "a@x.com", &domain.CandidateInfo{Name: "Augusta King"})
	require.NoError(t, err)
	assert.Equal(t, "Augusta King", res.Attempt.Candidate.Name)
	assert.Equal(t, "+1 555 010 0100", res.Attempt.Candidate.Phone)
}

func TestTracker_StartAttempt_TwiceReturnsSameAttempt(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()

	first, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	second, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.True(t, second.Resumed)
	assert.Equal(t, 1, second.Attempt.ResumeCount)

	all, err := f.store.Attempts().List(ctx, domain.AttemptFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	// resuming is not a lifecycle event
	assert.Equal(t, []domain.EventType{domain.EventAttemptStarted}, f.events.types())
}

func TestTracker_StartAttempt_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.StartAttempt(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.tracker.StartAttempt(context.Background(), "nobody@x.com", nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestTracker_ScenarioA_OneUnansweredSlot(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()

	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{
		ID: 1, Difficulty: diffp(domain.DifficultyEasy), TimeLimit: intp(20),
	})
	require.NoError(t, err)

	open, ok, err := f.tracker.GetOpenAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, open.Questions, 1)
	assert.False(t, open.Questions[0].Answered)
}

func TestTracker_RecordQuestion_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	for id := 1; id <= domain.SlotsPerAttempt; id++ {
		p := domain.SlotPatch{ID: id, Question: strp("q")}
		first, err := f.tracker.RecordQuestion(ctx, res.Attempt.ID, p)
		require.NoError(t, err)
		second, err := f.tracker.RecordQuestion(ctx, res.Attempt.ID, p)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
	a, err := f.tracker.GetAttempt(ctx, res.Attempt.ID)
	require.NoError(t, err)
	assert.Len(t, a.Questions, domain.SlotsPerAttempt)
}

func TestTracker_RecordQuestion_PreservesOmittedFields(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 2, Score: f64p(7), Feedback: strp("ok")})
	require.NoError(t, err)
	s, err := f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 2, Answer: strp("x")})
	require.NoError(t, err)
	require.NotNil(t, s.Score)
	assert.Equal(t, 7.0, *s.Score)
	assert.Equal(t, "ok", *s.Feedback)
	assert.Equal(t, "x", *s.Answer)
}

func TestTracker_RecordQuestion_RecomputesAggregates(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	answered := true
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 1, Answered: &answered, Score: f64p(6)})
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 2, Answered: &answered, Score: f64p(9)})
	require.NoError(t, err)

	a, err := f.tracker.GetAttempt(ctx, res.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, a.TotalScore)
	assert.Equal(t, 7.5, a.AverageScore)
}

func TestTracker_RecordQuestion_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()

	// Scenario C
	_, err := f.tracker.RecordQuestion(ctx, "nonexistent", domain.SlotPatch{ID: 1})
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
	all, err := f.store.Attempts().List(ctx, domain.AttemptFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 7})
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 1, Difficulty: diffp(domain.DifficultyHard)})
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)

	_, err = f.tracker.CompleteAttempt(ctx, res.Attempt.ID, nil, false)
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 1})
	assert.ErrorIs(t, err, domain.ErrAttemptClosed)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTracker_ScenarioB_CompleteAllSix(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	scores := []float64{8, 6, 7, 5, 9, 3}
	answered := true
	final := make([]domain.SlotPatch, 0, len(scores))
	for i, sc := range scores {
		p := domain.SlotPatch{ID: i + 1, Answer: strp("answer"), Score: f64p(sc), Answered: &answered, TimeTaken: intp(10)}
		_, err := f.tracker.RecordQuestion(ctx, res.Attempt.ID, p)
		require.NoError(t, err)
		final = append(final, domain.SlotPatch{ID: i + 1, Score: f64p(sc)})
	}

	f.clock.Advance(7*time.Minute + 40*time.Second)
	a, err := f.tracker.CompleteAttempt(ctx, res.Attempt.ID, final, false)
	require.NoError(t, err)
	assert.Equal(t, res.Attempt.ID, a.ID)
	assert.Equal(t, domain.AttemptCompleted, a.Status)
	assert.Equal(t, 6, a.AnsweredCount())
	assert.Equal(t, 38.0, a.TotalScore)
	assert.InDelta(t, 38.0/6, a.AverageScore, 1e-9)
	require.NotNil(t, a.Duration)
	assert.Equal(t, 8, *a.Duration)
	require.NotNil(t, a.CompletedAt)
	assert.Equal(t, f.clock.Now(), *a.CompletedAt)

	stored, err := f.tracker.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, stored.Status)
	assert.Contains(t, f.events.types(), domain.EventAttemptCompleted)

	_, ok, err := f.tracker.GetOpenAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_CompleteAttempt_ForcesAnsweredAndAppendsUnknownIDs(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 1, Score: f64p(4)})
	require.NoError(t, err)

	a, err := f.tracker.CompleteAttempt(ctx, res.Attempt.ID, []domain.SlotPatch{{ID: 1}, {ID: 3, Score: f64p(8)}}, false)
	require.NoError(t, err)
	require.Len(t, a.Questions, 2)
	for _, s := range a.Questions {
		assert.True(t, s.Answered, "slot %d", s.ID)
	}
	assert.Equal(t, 12.0, a.TotalScore)
	assert.Equal(t, 6.0, a.AverageScore)
}

func TestTracker_CompleteAttempt_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()

	_, err := f.tracker.CompleteAttempt(ctx, "missing", nil, false)
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)

	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.CompleteAttempt(ctx, res.Attempt.ID, []domain.SlotPatch{{ID: 0}}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)

	a, err := f.tracker.GetAttempt(ctx, res.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptInProgress, a.Status)

	_, err = f.tracker.CompleteAttempt(ctx, res.Attempt.ID, nil, false)
	require.NoError(t, err)
	_, err = f.tracker.CompleteAttempt(ctx, res.Attempt.ID, nil, false)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTracker_ScenarioD_CreateNewSessionFromResumedAttempt(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "a@x.com")
	ctx := context.Background()

	first, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.RecordQuestion(ctx, first.Attempt.ID, domain.SlotPatch{ID: 1, Answer: strp("a"), Score: f64p(6)})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	resumed, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	require.True(t, resumed.Resumed)

	f.clock.Advance(10 * time.Minute)
	done, err := f.tracker.CompleteAttempt(ctx, resumed.Attempt.ID, []domain.SlotPatch{{ID: 2, Score: f64p(8)}}, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.Attempt.ID, done.ID)
	assert.Equal(t, domain.AttemptCompleted, done.Status)
	assert.Equal(t, first.Attempt.ID, done.ResumedFrom)
	assert.Equal(t, first.Attempt.StartedAt, done.StartedAt)
	assert.Equal(t, 8.0, done.TotalScore)

	all, err := f.store.Attempts().List(ctx, domain.AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	statuses := map[domain.AttemptStatus]string{}
	for _, a := range all {
		assert.Equal(t, u.ID, a.UserID)
		statuses[a.Status] = a.ID
	}
	assert.Equal(t, first.Attempt.ID, statuses[domain.AttemptAbandoned])
	assert.Equal(t, done.ID, statuses[domain.AttemptCompleted])

	abandoned, err := f.tracker.GetAttempt(ctx, first.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, abandoned.Questions, 1)
	assert.Nil(t, abandoned.CompletedAt)

	assert.Equal(t, []domain.EventType{
		domain.EventAttemptStarted,
		domain.EventAttemptAbandoned,
		domain.EventAttemptCompleted,
	}, f.events.types())
}

func TestTracker_CreateNewSession_IgnoredWhenNotResumedOrDisabled(t *testing.T) {
	ctx := context.Background()

	t.Run("never resumed", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser(t, "a@x.com")
		res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
		require.NoError(t, err)
		done, err := f.tracker.CompleteAttempt(ctx, res.Attempt.ID, nil, true)
		require.NoError(t, err)
		assert.Equal(t, res.Attempt.ID, done.ID)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t)
		f.tracker.AllowNewSession = false
		f.seedUser(t, "a@x.com")
		res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
		require.NoError(t, err)
		_, err = f.tracker.StartAttempt(ctx, "a@x.com", nil)
		require.NoError(t, err)
		done, err := f.tracker.CompleteAttempt(ctx, res.Attempt.ID, nil, true)
		require.NoError(t, err)
		assert.Equal(t, res.Attempt.ID, done.ID)
		all, err := f.store.Attempts().List(ctx, domain.AttemptFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestTracker_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	f.seedUser(t, "a@x.com")

	res, err := f.tracker.StartAttempt(context.Background(), "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.CompleteAttempt(context.Background(), res.Attempt.ID, nil, false)
	require.NoError(t, err)
	assert.Len(t, f.events.types(), 2)
}

func TestTracker_GetOpenAttempt_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, ok, err := f.tracker.GetOpenAttempt(context.Background(), "ghost@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.tracker.GetOpenAttempt(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTracker_GetAttempt_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.GetAttempt(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.tracker.GetAttempt(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestTracker_ListForUser(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	f.seedUser(t, "b@x.com")
	ctx := context.Background()

	first, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.CompleteAttempt(ctx, first.Attempt.ID, nil, false)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)
	_, err = f.tracker.StartAttempt(ctx, "b@x.com", nil)
	require.NoError(t, err)

	list, err := f.tracker.ListForUser(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Attempt.ID, list[0].ID)
	assert.Equal(t, first.Attempt.ID, list[1].ID)

	_, err = f.tracker.ListForUser(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewTrackerService_DefaultsClock(t *testing.T) {
	svc := usecase.NewTrackerService(nil, nil, nil, nil, false)
	assert.NotNil(t, svc.Clock)
}

// slowGetAttempts widens the window between reading and writing an attempt.
type slowGetAttempts struct {
	domain.AttemptRepository
	delay time.Duration
}

func (r slowGetAttempts) Get(ctx domain.Context, id string) (domain.Attempt, error) {
	a, err := r.AttemptRepository.Get(ctx, id)
	time.Sleep(r.delay)
	return a, err
}

func (r slowGetAttempts) FindOpen(ctx domain.Context, userID string) (domain.Attempt, error) {
	a, err := r.AttemptRepository.FindOpen(ctx, userID)
	time.Sleep(r.delay)
	return a, err
}

func TestTracker_RecordQuestion_ConcurrentSlotsAllKept(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	tracker := f.tracker
	tracker.Attempts = slowGetAttempts{AttemptRepository: f.store.Attempts(), delay: 2 * time.Millisecond}

	res, err := tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	answered := true
	var wg sync.WaitGroup
	errs := make(chan error, domain.SlotsPerAttempt)
	for id := 1; id <= domain.SlotsPerAttempt; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: id, Answered: &answered, Answer: strp("x"), Score: f64p(5)})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.tracker.GetAttempt(ctx, res.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, domain.SlotsPerAttempt)
	for id := 1; id <= domain.SlotsPerAttempt; id++ {
		_, ok := got.Slot(id)
		assert.True(t, ok, "slot %d", id)
	}
	assert.Equal(t, 30.0, got.TotalScore)
	assert.Equal(t, int64(domain.SlotsPerAttempt), got.Version)
}

func TestTracker_StartAttempt_ConcurrentResumesCounted(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	tracker := f.tracker
	tracker.Attempts = slowGetAttempts{AttemptRepository: f.store.Attempts(), delay: 2 * time.Millisecond}

	first, err := tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tracker.StartAttempt(ctx, "a@x.com", nil)
			assert.NoError(t, err)
			assert.True(t, res.Resumed)
		}()
	}
	wg.Wait()

	got, err := f.tracker.GetAttempt(ctx, first.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.ResumeCount)
}

func TestTracker_StaleWriteGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com")
	ctx := context.Background()
	res, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	require.NoError(t, err)

	tracker := f.tracker
	tracker.Attempts = alwaysStale{AttemptRepository: f.store.Attempts()}
	_, err = tracker.RecordQuestion(ctx, res.Attempt.ID, domain.SlotPatch{ID: 1, Score: f64p(5)})
	assert.ErrorIs(t, err, domain.ErrStaleAttempt)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

type alwaysStale struct{ domain.AttemptRepository }

func (alwaysStale) Update(domain.Context, domain.Attempt) error { return domain.ErrStaleAttempt }

func TestTracker_InactiveUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "a@x.com")
	ctx := context.Background()
	u.IsActive = false
	require.NoError(t, f.store.Users().Update(ctx, u))

	_, err := f.tracker.StartAttempt(ctx, "a@x.com", nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.tracker.ListForUser(ctx, "a@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, ok, err := f.tracker.GetOpenAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := f.store.Attempts().List(ctx, domain.AttemptFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
