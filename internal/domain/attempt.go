package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// SlotsPerAttempt is the fixed number of questions in one attempt.
const SlotsPerAttempt = 6

// Difficulty is the tier of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DifficultyLadder is the difficulty of each slot, indexed by sequence id - 1.
var DifficultyLadder = [SlotsPerAttempt]Difficulty{
	DifficultyEasy, DifficultyEasy,
	DifficultyMedium, DifficultyMedium,
	DifficultyHard, DifficultyHard,
}

// Valid reports whether d is a known tier.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// TimeLimit returns the answer time limit in seconds.
func (d Difficulty) TimeLimit() int {
	switch d {
	case DifficultyEasy:
		return 20
	case DifficultyMedium:
		return 60
	case DifficultyHard:
		return 120
	}
	return 60
}

// Points returns the maximum points a question of this tier is worth.
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	}
	return 20
}

// DifficultyForSlot returns the fixed tier of sequence id, false when out of range.
func DifficultyForSlot(id int) (Difficulty, bool) {
	if id < 1 || id > SlotsPerAttempt {
		return "", false
	}
	return DifficultyLadder[id-1], true
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptInProgress, AttemptCompleted, AttemptAbandoned:
		return true
	}
	return false
}

// Open reports whether the attempt can still be mutated.
func (s AttemptStatus) Open() bool { return s == AttemptInProgress }

// CandidateInfo is the snapshot of the candidate taken when the attempt started.
// It is decoupled from the live User so historical results don't drift.
type CandidateInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	ResumeText string `json:"resumeText,omitempty"`
}

// Slot records one question of an attempt.
type Slot struct {
	ID         int        `json:"id"`
	Question   string     `json:"question"`
	Difficulty Difficulty `json:"difficulty"`
	TimeLimit  int        `json:"timeLimit"`
	Answered   bool       `json:"answered"`
	Answer     *string    `json:"answer"`
	Score      *float64   `json:"score"`
	TimeTaken  *int       `json:"timeTaken"`
	Feedback   *string    `json:"feedback"`
	TimedOut   bool       `json:"timedOut"`
}

// SlotPatch is a partial slot keyed by ID. Nil fields leave the stored value
// untouched; non-nil fields, including explicit false and 0, replace it.
type SlotPatch struct {
	ID         int         `json:"id"`
	Question   *string     `json:"question,omitempty"`
	Difficulty *Difficulty `json:"difficulty,omitempty"`
	TimeLimit  *int        `json:"timeLimit,omitempty"`
	Answered   *bool       `json:"answered,omitempty"`
	Answer     *string     `json:"answer,omitempty"`
	Score      *float64    `json:"score,omitempty"`
	TimeTaken  *int        `json:"timeTaken,omitempty"`
	Feedback   *string     `json:"feedback,omitempty"`
	TimedOut   *bool       `json:"timedOut,omitempty"`
}

// Validate checks the patch against the fixed slot layout.
func (p SlotPatch) Validate() error {
	want, ok := DifficultyForSlot(p.ID)
	if !ok {
		return fmt.Errorf("%w: sequence id %d outside 1..%d", ErrInvalidSlot, p.ID, SlotsPerAttempt)
	}
	if p.Difficulty != nil && *p.Difficulty != want {
		return fmt.Errorf("%w: slot %d is %s, got %q", ErrInvalidSlot, p.ID, want, *p.Difficulty)
	}
	if p.TimeLimit != nil && *p.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidSlot)
	}
	if p.Score != nil && (*p.Score < 1 || *p.Score > 10) {
		return fmt.Errorf("%w: score %v outside 1..10", ErrInvalidSlot, *p.Score)
	}
	if p.TimeTaken != nil && *p.TimeTaken < 0 {
		return fmt.Errorf("%w: time taken must not be negative", ErrInvalidSlot)
	}
	return nil
}

// newSlot builds an empty slot for id with the ladder defaults.
func newSlot(id int) Slot {
	d, _ := DifficultyForSlot(id)
	return Slot{ID: id, Difficulty: d, TimeLimit: d.TimeLimit()}
}

// Merge layers p over s. The caller is expected to have validated p.
func (s Slot) Merge(p SlotPatch) Slot {
	if p.Question != nil {
		s.Question = *p.Question
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	if p.TimeLimit != nil {
		s.TimeLimit = *p.TimeLimit
	}
	if p.Answered != nil {
		s.Answered = *p.Answered
	}
	if p.Answer != nil {
		v := *p.Answer
		s.Answer = &v
	}
	if p.Score != nil {
		v := *p.Score
		s.Score = &v
	}
	if p.TimeTaken != nil {
		v := *p.TimeTaken
		s.TimeTaken = &v
	}
	if p.Feedback != nil {
		v := *p.Feedback
		s.Feedback = &v
	}
	if p.TimedOut != nil {
		s.TimedOut = *p.TimedOut
	}
	return s
}

// Attempt is one candidate's run through the fixed question sequence.
type Attempt struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Candidate    CandidateInfo `json:"candidateInfo"`
	Questions    []Slot        `json:"questions"`
	TotalScore   float64       `json:"totalScore"`
	AverageScore float64       `json:"averageScore"`
	Status       AttemptStatus `json:"status"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt"`
	Duration     *int          `json:"duration"`
	ResumeCount  int           `json:"resumeCount"`
	ResumedFrom  string        `json:"resumedFrom,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	// Version increases by one on every stored update.
	Version      int64         `json:"version"`
}

// Slot returns the slot with the given sequence id.
func (a Attempt) Slot(id int) (Slot, bool) {
	for _, s := range a.Questions {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// UpsertSlot merges p into the slot with the same id, appending a new slot
// when none exists, and returns the merged slot.
func (a *Attempt) UpsertSlot(p SlotPatch) (Slot, error) {
	if err := p.Validate(); err != nil {
		return Slot{}, err
	}
	for i := range a.Questions {
		if a.Questions[i].ID == p.ID {
			a.Questions[i] = a.Questions[i].Merge(p)
			return a.Questions[i], nil
		}
	}
	s := newSlot(p.ID).Merge(p)
	a.Questions = append(a.Questions, s)
	sort.SliceStable(a.Questions, func(i, j int) bool { return a.Questions[i].ID < a.Questions[j].ID })
	return s, nil
}

// AnsweredCount returns how many slots are marked answered.
func (a Attempt) AnsweredCount() int {
	n := 0
	for _, s := range a.Questions {
		if s.Answered {
			n++
		}
	}
	return n
}

// AllAnswered reports whether every slot of the sequence has been answered.
func (a Attempt) AllAnswered() bool {
	return len(a.Questions) == SlotsPerAttempt && a.AnsweredCount() == SlotsPerAttempt
}

// AskedQuestions returns the question texts already present, in slot order.
func (a Attempt) AskedQuestions() []string {
	out := make([]string, 0, len(a.Questions))
	for _, s := range a.Questions {
		if s.Question != "" {
			out = append(out, s.Question)
		}
	}
	return out
}

// RecomputeScores derives TotalScore and AverageScore from answered slots.
// An answered slot without a score counts as zero.
func (a *Attempt) RecomputeScores() {
	var total float64
	n := 0
	for _, s := range a.Questions {
		if !s.Answered {
			continue
		}
		n++
		if s.Score != nil {
			total += *s.Score
		}
	}
	a.TotalScore = total
	if n == 0 {
		a.AverageScore = 0
		return
	}
	a.AverageScore = total / float64(n)
}

// Finalize merges the final answers with answered forced true, marks the
// attempt completed at now and derives duration and aggregates.
func (a *Attempt) Finalize(answers []SlotPatch, now time.Time) error {
	for _, p := range answers {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, p := range answers {
		answered := true
		p.Answered = &answered
		if _, err := a.UpsertSlot(p); err != nil {
			return err
		}
	}
	a.Status = AttemptCompleted
	at := now.UTC()
	a.CompletedAt = &at
	d := DurationMinutes(a.StartedAt, at)
	a.Duration = &d
	a.RecomputeScores()
	return nil
}

// DurationMinutes returns the elapsed whole minutes between start and end, rounded.
func DurationMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}

// MatchesSearch reports whether q is a case-insensitive substring of the
// candidate's name, email or phone. An empty query matches everything.
func (a Attempt) MatchesSearch(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range []string{a.Candidate.Name, a.Candidate.Email, a.Candidate.Phone} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of a.
func (a Attempt) Clone() Attempt {
	out := a
	out.Questions = make([]Slot, len(a.Questions))
	for i, s := range a.Questions {
		s.Answer = clonePtr(s.Answer)
		s.Score = clonePtr(s.Score)
		s.TimeTaken = clonePtr(s.TimeTaken)
		s.Feedback = clonePtr(s.Feedback)
		out.Questions[i] = s
	}
	out.CompletedAt = clonePtr(a.CompletedAt)
	out.Duration = clonePtr(a.Duration)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NormalizeQuestion is the form used to detect repeated questions.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// AskedSet returns the normalized forms of asked for repeat checks.
func AskedSet(asked []string) map[string]struct{} {
	set := make(map[string]struct{}, len(asked))
	for _, q := range asked {
		set[NormalizeQuestion(q)] = struct{}{}
	}
	return set
}
