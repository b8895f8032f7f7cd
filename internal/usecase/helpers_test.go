package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/repo/memory"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// mockAIClient is a testify mock of domain.AIClient.
type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) Provider() string { return "mock" }

func (m *mockAIClient) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, maxTokens)
	return args.String(0), args.Error(1)
}

// recordingPublisher keeps every published event; err is returned from Publish.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AttemptEvent
	err    error
}

func (p *recordingPublisher) Publish(_ domain.Context, ev domain.AttemptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *memory.Store
	clock   *testClock
	events  *recordingPublisher
	users   usecase.UserService
	tracker usecase.TrackerService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	clock := newTestClock()
	events := &recordingPublisher{}
	return fixture{
		store:   store,
		clock:   clock,
		events:  events,
		users:   usecase.NewUserService(store.Users(), clock),
		tracker: usecase.NewTrackerService(store.Users(), store.Attempts(), events, clock, true),
	}
}

func (f fixture) seedUser(t *testing.T, email string) domain.User {
	t.Helper()
	u, created, err := f.users.Save(context.Background(), usecase.SaveUserInput{
		Name:   "Ada Lovelace",
		Email:  email,
		Phone:  "+1 555 010 0100",
		Resume: &domain.Resume{Text: "Ada Lovelace\nAnalytical engines"},
	})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func strp(s string) *string                        { return &s }
func intp(i int) *int                              { return &i }
func f64p(f float64) *float64                      { return &f }
func diffp(d domain.Difficulty) *domain.Difficulty { return &d }
