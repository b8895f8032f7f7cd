package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// Backend is the server side of the flow.
type Backend interface {
	ParseResume(ctx context.Context, fileName string, data []byte) (usecase.ParsedResume, error)
	SaveUser(ctx context.Context, fields usecase.CandidateFields, resume *domain.Resume) error
	StartAttempt(ctx context.Context, email string, info domain.CandidateInfo) (domain.Attempt, error)
	NextQuestion(ctx context.Context, req domain.QuestionRequest) (usecase.NextQuestion, error)
	RecordQuestion(ctx context.Context, attemptID string, p domain.SlotPatch) error
	Evaluate(ctx context.Context, in domain.AnswerInput) (domain.Evaluation, error)
	CompleteAttempt(ctx context.Context, attemptID string, answers []domain.SlotPatch) (domain.Attempt, error)
	Summary(ctx context.Context, attemptID string) (usecase.Summary, error)
}

// SessionStore persists the flow state between client runs.
type SessionStore interface {
	SaveSession(ctx context.Context, email string, data json.RawMessage) error
	LoadSession(ctx context.Context, email string) (json.RawMessage, bool, error)
}

// Candidate is the person on the other side of the terminal.
type Candidate interface {
	// Say shows an assistant message.
	Say(text string)
	// Ask returns one line of input.
	Ask(ctx context.Context, prompt string) (string, error)
	// Answer blocks until the candidate submits an answer or ctx is done.
	// On ctx cancellation it returns whatever was typed so far with ctx.Err().
	Answer(ctx context.Context, r Round) (string, error)
}

// Controller runs one chat flow.
type Controller struct {
	Backend   Backend
	Sessions  SessionStore
	Candidate Candidate
	// TickInterval overrides the one second countdown tick. Zero means one second.
	TickInterval time.Duration
	// Logger defaults to slog.Default.
	Logger *slog.Logger

	mu    sync.Mutex
	state State
}

// Input starts a run.
type Input struct {
	// Email lets a returning candidate restore a saved session.
	Email      string
	ResumeName string
	Resume     []byte
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// dispatch reduces ev into the state and persists the result. Persistence
// errors are logged; the flow carries on.
func (c *Controller) dispatch(ctx context.Context, ev Event) error {
	c.mu.Lock()
	next, err := Reduce(c.state, ev)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	snapshot := next.clone()
	c.mu.Unlock()

	c.persist(ctx, snapshot)
	return nil
}

func (c *Controller) persist(ctx context.Context, s State) {
	if c.Sessions == nil || s.Fields.Email == "" {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		c.logger().Warn("chat state encode failed", slog.Any("error", err))
		return
	}
	if err := c.Sessions.SaveSession(ctx, s.Fields.Email, b); err != nil {
		c.logger().Warn("session save failed", slog.String("email", s.Fields.Email), slog.Any("error", err))
	}
}

// restore loads a saved state for email. Completed or unreadable sessions
// start over.
func (c *Controller) restore(ctx context.Context, email string) bool {
	if c.Sessions == nil || email == "" {
		return false
	}
	raw, ok, err := c.Sessions.LoadSession(ctx, email)
	if err != nil {
		c.logger().Warn("session load failed", slog.String("email", email), slog.Any("error", err))
		return false
	}
	if !ok {
		return false
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil || !s.Phase.Valid() || s.Phase == domain.PhaseCompleted || s.Phase == domain.PhaseUpload {
		return false
	}
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger().Info("chat session restored", slog.String("email", email), slog.String("phase", string(s.Phase)))
	return true
}

// Run drives the flow to completion and returns the final state.
func (c *Controller) Run(ctx context.Context, in Input) (State, error) {
	c.mu.Lock()
	c.state = NewState()
	c.mu.Unlock()

	if c.restore(ctx, in.Email) {
		c.Candidate.Say("Welcome back! Picking up where you left off.")
	}

	for {
		s := c.State()
		var err error
		switch s.Phase {
		case domain.PhaseUpload:
			err = c.upload(ctx, in)
		case domain.PhaseCollecting:
			err = c.collect(ctx)
		case domain.PhaseReady:
			err = c.start(ctx)
		case domain.PhaseInterview:
			err = c.interview(ctx)
		case domain.PhaseCompleted:
			return s, nil
		default:
			return s, fmt.Errorf("op=chatflow.run: unknown phase %q", s.Phase)
		}
		if err != nil {
			return c.State(), err
		}
	}
}

func (c *Controller) upload(ctx context.Context, in Input) error {
	if len(in.Resume) == 0 {
		return fmt.Errorf("op=chatflow.upload: %w: resume file required", domain.ErrInvalidArgument)
	}
	c.Candidate.Say("Reading your resume...")
	parsed, err := c.Backend.ParseResume(ctx, in.ResumeName, in.Resume)
	if err != nil {
		return fmt.Errorf("op=chatflow.upload: %w", err)
	}
	if err := c.dispatch(ctx, ResumeParsed{FileName: in.ResumeName, Parsed: parsed}); err != nil {
		return err
	}
	// collecting prompts through Ask
	if c.State().Phase == domain.PhaseReady {
		c.Candidate.Say(lastMessage(c.State()))
	}
	return nil
}

func (c *Controller) collect(ctx context.Context) error {
	s := c.State()
	if len(s.Missing) == 0 {
		return fmt.Errorf("op=chatflow.collect: %w: nothing to collect", ErrIllegalTransition)
	}
	field := s.Missing[0]
	v, err := c.Candidate.Ask(ctx, FieldPrompt(field))
	if err != nil {
		return fmt.Errorf("op=chatflow.collect: %w", err)
	}
	if err := c.dispatch(ctx, FieldProvided{Field: field, Value: v}); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			c.Candidate.Say(fmt.Sprintf("That doesn't look like a valid %s, please try again.", field))
			return nil
		}
		return err
	}
	if c.State().Phase == domain.PhaseReady {
		c.Candidate.Say(lastMessage(c.State()))
	}
	return nil
}

func (c *Controller) start(ctx context.Context) error {
	s := c.State()
	var resume *domain.Resume
	if s.Resume.Text != "" {
		resume = &domain.Resume{Text: s.Resume.Text, FileType: s.Resume.FileType}
	}
	if err := c.Backend.SaveUser(ctx, s.Fields, resume); err != nil {
		return fmt.Errorf("op=chatflow.start: %w", err)
	}
	a, err := c.Backend.StartAttempt(ctx, s.Fields.Email, domain.CandidateInfo{
		Name: s.Fields.Name, Email: s.Fields.Email, Phone: s.Fields.Phone, ResumeText: s.Resume.Text,
	})
	if err != nil {
		return fmt.Errorf("op=chatflow.start: %w", err)
	}
	if err := c.dispatch(ctx, AttemptStarted{AttemptID: a.ID, Questions: a.Questions}); err != nil {
		return err
	}
	c.Candidate.Say(lastMessage(c.State()))
	return nil
}

func (c *Controller) interview(ctx context.Context) error {
	for {
		s := c.State()
		if s.Current == nil && len(s.Answered) >= domain.SlotsPerAttempt {
			return c.complete(ctx)
		}
		if err := c.round(ctx); err != nil {
			return err
		}
	}
}

// round asks one question, or resumes the one left on screen.
func (c *Controller) round(ctx context.Context) error {
	s := c.State()
	if s.Current == nil {
		slotID := s.NextSlot()
		difficulty, _ := domain.DifficultyForSlot(slotID)
		q, err := c.Backend.NextQuestion(ctx, domain.QuestionRequest{
			Difficulty: difficulty, Asked: s.Asked(), ResumeText: s.Resume.Text,
		})
		if err != nil {
			return fmt.Errorf("op=chatflow.round: next question: %w", err)
		}
		limit := q.TimeLimit
		if limit <= 0 {
			limit = difficulty.TimeLimit()
		}
		if err := c.dispatch(ctx, QuestionAsked{SlotID: slotID, Question: q.Question, Difficulty: difficulty, TimeLimit: limit}); err != nil {
			return err
		}
		answered := false
		if err := c.Backend.RecordQuestion(ctx, s.AttemptID, domain.SlotPatch{
			ID: slotID, Question: &q.Question, Difficulty: &difficulty, TimeLimit: &limit, Answered: &answered,
		}); err != nil {
			return fmt.Errorf("op=chatflow.round: record question: %w", err)
		}
	}

	cur := *c.State().Current
	c.Candidate.Say(QuestionText(cur))
	answer, timedOut, timeTaken, err := c.collectAnswer(ctx, cur)
	if err != nil {
		return err
	}

	ev, err := c.Backend.Evaluate(ctx, domain.AnswerInput{
		Question: cur.Question, Answer: answer, Difficulty: cur.Difficulty, TimeTaken: timeTaken,
	})
	if err != nil {
		c.logger().Warn("evaluation failed, using local score", slog.Any("error", err))
		ev = usecase.HeuristicScore(answer, cur.Difficulty, timeTaken)
		ev.Provider = usecase.LocalProvider
		ev.Error = usecase.ServiceUnavailable
	}

	answered := true
	score, feedback := ev.Score, ev.Feedback
	if err := c.Backend.RecordQuestion(ctx, c.State().AttemptID, domain.SlotPatch{
		ID: cur.SlotID, Answered: &answered, Answer: &answer, Score: &score,
		TimeTaken: &timeTaken, Feedback: &feedback, TimedOut: &timedOut,
	}); err != nil {
		return fmt.Errorf("op=chatflow.round: record answer: %w", err)
	}
	if err := c.dispatch(ctx, AnswerScored{Answer: answer, TimeTaken: timeTaken, TimedOut: timedOut, Evaluation: ev}); err != nil {
		return err
	}
	c.Candidate.Say(lastMessage(c.State()))
	return nil
}

// collectAnswer races the candidate against the countdown. Whatever was
// typed when time runs out is submitted as the answer.
func (c *Controller) collectAnswer(ctx context.Context, cur Round) (answer string, timedOut bool, timeTaken int, err error) {
	answerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var expired bool
	var expiredMu sync.Mutex
	cd := &Countdown{
		Seconds:  cur.Remaining,
		Interval: c.TickInterval,
		OnTick: func(left int) {
			if err := c.dispatch(ctx, Tick{Remaining: left}); err != nil {
				c.logger().Debug("tick dropped", slog.Any("error", err))
			}
		},
		OnExpire: func() {
			expiredMu.Lock()
			expired = true
			expiredMu.Unlock()
			cancel()
		},
	}
	cd.Start(answerCtx)

	answer, aerr := c.Candidate.Answer(answerCtx, cur)
	remaining, stopped := cd.Stop()
	<-cd.Done()

	expiredMu.Lock()
	timedOut = expired && !stopped
	expiredMu.Unlock()

	switch {
	case timedOut:
		return answer, true, cur.TimeLimit, nil
	case ctx.Err() != nil:
		return "", false, 0, fmt.Errorf("op=chatflow.answer: %w", ctx.Err())
	case aerr != nil:
		return "", false, 0, fmt.Errorf("op=chatflow.answer: %w", aerr)
	}
	return answer, false, max(0, cur.TimeLimit-remaining), nil
}

func (c *Controller) complete(ctx context.Context) error {
	s := c.State()
	answers := make([]domain.SlotPatch, 0, len(s.Answered))
	for _, a := range s.Answered {
		answered := true
		answers = append(answers, domain.SlotPatch{
			ID: a.SlotID, Answered: &answered, Answer: &a.Answer, Score: &a.Score,
			TimeTaken: &a.TimeTaken, Feedback: &a.Feedback, TimedOut: &a.TimedOut,
		})
	}
	done, err := c.Backend.CompleteAttempt(ctx, s.AttemptID, answers)
	if err != nil {
		return fmt.Errorf("op=chatflow.complete: %w", err)
	}
	var summary string
	if sum, err := c.Backend.Summary(ctx, done.ID); err != nil {
		c.logger().Warn("summary unavailable", slog.String("attempt_id", done.ID), slog.Any("error", err))
	} else {
		summary = sum.Text
	}
	if err := c.dispatch(ctx, Completed{TotalScore: done.TotalScore, AverageScore: done.AverageScore, Summary: summary}); err != nil {
		return err
	}
	c.Candidate.Say(lastMessage(c.State()))
	return nil
}

func lastMessage(s State) string {
	if len(s.Transcript) == 0 {
		return ""
	}
	return s.Transcript[len(s.Transcript)-1].Text
}
