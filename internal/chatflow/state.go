// Package chatflow drives one candidate through resume intake, contact
// field collection and the six timed interview rounds.
//
// The whole flow is a single State value. Every change goes through Reduce,
// and the controller persists the resulting State to the candidate's
// session so a restarted client continues where it stopped.
package chatflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// ErrIllegalTransition is returned when an event does not apply to the
// current phase.
var ErrIllegalTransition = errors.New("illegal chat transition")

// Message is one line of the chat transcript.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Transcript roles.
const (
	RoleAssistant = "assistant"
	RoleCandidate = "candidate"
)

// ResumeInfo is the upload phase payload.
type ResumeInfo struct {
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Round is the question currently on screen.
type Round struct {
	SlotID     int               `json:"slotId"`
	Question   string            `json:"question"`
	Difficulty domain.Difficulty `json:"difficulty"`
	TimeLimit  int               `json:"timeLimit"`
	Remaining  int               `json:"remaining"`
}

// AnsweredRound is a scored round.
type AnsweredRound struct {
	SlotID     int               `json:"slotId"`
	Question   string            `json:"question"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Answer     string            `json:"answer"`
	TimeTaken  int               `json:"timeTaken"`
	TimedOut   bool              `json:"timedOut"`
	Score      float64           `json:"score"`
	Feedback   string            `json:"feedback"`
}

// Result is the completed phase payload.
type Result struct {
	AttemptID    string  `json:"attemptId"`
	TotalScore   float64 `json:"totalScore"`
	AverageScore float64 `json:"averageScore"`
	Summary      string  `json:"summary,omitempty"`
}

// State is the full chat flow. Payload fields are only meaningful in the
// phases that set them; Reduce keeps them consistent.
type State struct {
	Phase domain.ChatPhase `json:"chatPhase"`

	Resume  ResumeInfo              `json:"resume"`
	Fields  usecase.CandidateFields `json:"fields"`
	Missing []string                `json:"missingFields"`

	AttemptID string          `json:"attemptId,omitempty"`
	Current   *Round          `json:"currentRound,omitempty"`
	Answered  []AnsweredRound `json:"answered,omitempty"`

	Result *Result `json:"result,omitempty"`

	Transcript []Message `json:"transcript,omitempty"`
}

// NewState returns the initial upload phase.
func NewState() State { return State{Phase: domain.PhaseUpload, Missing: []string{}} }

// NextSlot is the sequence id of the next question to ask.
func (s State) NextSlot() int { return len(s.Answered) + 1 }

// Asked lists every question shown so far, for exclusion.
func (s State) Asked() []string {
	out := make([]string, 0, len(s.Answered)+1)
	for _, a := range s.Answered {
		out = append(out, a.Question)
	}
	if s.Current != nil {
		out = append(out, s.Current.Question)
	}
	return out
}

// Event is an input to Reduce.
type Event interface{ event() }

// ResumeParsed moves upload to collecting, or straight to ready when every
// field was detected.
type ResumeParsed struct {
	FileName string
	Parsed   usecase.ParsedResume
}

// FieldProvided fills one missing contact field.
type FieldProvided struct {
	Field string
	Value string
}

// AttemptStarted moves ready to interview. Questions are the slots already
// stored on a resumed attempt.
type AttemptStarted struct {
	AttemptID string
	Questions []domain.Slot
}

// QuestionAsked puts the next question on screen.
type QuestionAsked struct {
	SlotID     int
	Question   string
	Difficulty domain.Difficulty
	TimeLimit  int
}

// Tick updates the remaining seconds of the current question.
type Tick struct{ Remaining int }

// AnswerScored closes the current question.
type AnswerScored struct {
	Answer     string
	TimeTaken  int
	TimedOut   bool
	Evaluation domain.Evaluation
}

// Completed moves interview to completed.
type Completed struct {
	TotalScore   float64
	AverageScore float64
	Summary      string
}

// Reset discards everything and returns to upload.
type Reset struct{}

func (ResumeParsed) event()   {}
func (FieldProvided) event()  {}
func (AttemptStarted) event() {}
func (QuestionAsked) event()  {}
func (Tick) event()           {}
func (AnswerScored) event()   {}
func (Completed) event()      {}
func (Reset) event()          {}

func illegal(s State, ev Event) error {
	return fmt.Errorf("%w: %T in phase %s", ErrIllegalTransition, ev, s.Phase)
}

// Reduce applies ev to s. It never mutates s; on error the returned state
// is s unchanged.
func Reduce(s State, ev Event) (State, error) {
	next := s.clone()
	switch e := ev.(type) {
	case Reset:
		return NewState(), nil

	case ResumeParsed:
		if s.Phase != domain.PhaseUpload {
			return s, illegal(s, ev)
		}
		next.Resume = ResumeInfo{FileName: e.FileName, FileType: e.Parsed.FileType, Text: e.Parsed.Text}
		next.Fields = usecase.CandidateFields{}
		for _, f := range []struct {
			name string
			dst  *string
			val  string
		}{
			{"name", &next.Fields.Name, e.Parsed.Extracted.Name},
			{"email", &next.Fields.Email, e.Parsed.Extracted.Email},
			{"phone", &next.Fields.Phone, e.Parsed.Extracted.Phone},
		} {
			if !slices.Contains(e.Parsed.MissingFields, f.name) {
				*f.dst = strings.TrimSpace(f.val)
			}
		}
		next.Missing = append([]string{}, e.Parsed.MissingFields...)
		next.say(RoleAssistant, "Resume received.")
		if len(next.Missing) == 0 {
			next.Phase = domain.PhaseReady
			next.say(RoleAssistant, "All details found. Ready to start the interview.")
			return next, nil
		}
		next.Phase = domain.PhaseCollecting
		next.say(RoleAssistant, FieldPrompt(next.Missing[0]))
		return next, nil

	case FieldProvided:
		if s.Phase != domain.PhaseCollecting || len(s.Missing) == 0 || s.Missing[0] != e.Field {
			return s, illegal(s, ev)
		}
		v := strings.TrimSpace(e.Value)
		if !ValidField(e.Field, v) {
			return s, fmt.Errorf("%w: invalid %s", domain.ErrInvalidArgument, e.Field)
		}
		switch e.Field {
		case "name":
			next.Fields.Name = v
		case "email":
			next.Fields.Email = usecase.NormalizeEmail(v)
		case "phone":
			next.Fields.Phone = v
		}
		next.say(RoleCandidate, v)
		next.Missing = next.Missing[1:]
		if len(next.Missing) == 0 {
			next.Phase = domain.PhaseReady
			next.say(RoleAssistant, "Thanks, all details collected. Ready to start the interview.")
		} else {
			next.say(RoleAssistant, FieldPrompt(next.Missing[0]))
		}
		return next, nil

	case AttemptStarted:
		if s.Phase != domain.PhaseReady || e.AttemptID == "" {
			return s, illegal(s, ev)
		}
		next.Phase = domain.PhaseInterview
		next.AttemptID = e.AttemptID
		next.Current = nil
		next.Answered = answeredFromSlots(e.Questions)
		if len(next.Answered) > 0 {
			next.say(RoleAssistant, fmt.Sprintf("Welcome back. Continuing from question %d.", next.NextSlot()))
		} else {
			next.say(RoleAssistant, fmt.Sprintf("Starting the interview: %d questions.", domain.SlotsPerAttempt))
		}
		return next, nil

	case QuestionAsked:
		if s.Phase != domain.PhaseInterview || s.Current != nil || e.SlotID != s.NextSlot() {
			return s, illegal(s, ev)
		}
		if want, ok := domain.DifficultyForSlot(e.SlotID); !ok || want != e.Difficulty {
			return s, fmt.Errorf("%w: slot %d difficulty %q", domain.ErrInvalidSlot, e.SlotID, e.Difficulty)
		}
		next.Current = &Round{
			SlotID: e.SlotID, Question: e.Question, Difficulty: e.Difficulty,
			TimeLimit: e.TimeLimit, Remaining: e.TimeLimit,
		}
		next.say(RoleAssistant, QuestionText(*next.Current))
		return next, nil

	case Tick:
		if s.Phase != domain.PhaseInterview || s.Current == nil {
			return s, illegal(s, ev)
		}
		r := *s.Current
		r.Remaining = max(0, min(e.Remaining, r.TimeLimit))
		next.Current = &r
		return next, nil

	case AnswerScored:
		if s.Phase != domain.PhaseInterview || s.Current == nil {
			return s, illegal(s, ev)
		}
		cur := *s.Current
		next.Answered = append(next.Answered, AnsweredRound{
			SlotID: cur.SlotID, Question: cur.Question, Difficulty: cur.Difficulty,
			Answer: e.Answer, TimeTaken: e.TimeTaken, TimedOut: e.TimedOut,
			Score: e.Evaluation.Score, Feedback: e.Evaluation.Feedback,
		})
		next.Current = nil
		answer := e.Answer
		if e.TimedOut && strings.TrimSpace(answer) == "" {
			answer = "(no answer, time expired)"
		}
		next.say(RoleCandidate, answer)
		next.say(RoleAssistant, fmt.Sprintf("Score: %g/10. %s", e.Evaluation.Score, e.Evaluation.Feedback))
		return next, nil

	case Completed:
		if s.Phase != domain.PhaseInterview || s.Current != nil || len(s.Answered) < domain.SlotsPerAttempt {
			return s, illegal(s, ev)
		}
		next.Phase = domain.PhaseCompleted
		next.Result = &Result{AttemptID: s.AttemptID, TotalScore: e.TotalScore, AverageScore: e.AverageScore, Summary: e.Summary}
		msg := fmt.Sprintf("Interview complete. Average score %.1f/10.", e.AverageScore)
		if e.Summary != "" {
			msg += " " + e.Summary
		}
		next.say(RoleAssistant, msg)
		return next, nil
	}
	return s, illegal(s, ev)
}

// QuestionText renders a round for the candidate.
func QuestionText(r Round) string {
	return fmt.Sprintf("Question %d/%d (%s, %ds left): %s",
		r.SlotID, domain.SlotsPerAttempt, r.Difficulty, r.Remaining, r.Question)
}

// ValidField reports whether v is acceptable for a contact field.
func ValidField(field, v string) bool {
	switch field {
	case "name":
		return usecase.ValidName(v)
	case "email":
		return usecase.ValidEmail(v)
	case "phone":
		return usecase.ValidPhone(v)
	}
	return false
}

// FieldPrompt is the question asked for a missing field.
func FieldPrompt(field string) string {
	switch field {
	case "name":
		return "I couldn't find your full name in the resume. What is your name?"
	case "email":
		return "What is your email address?"
	case "phone":
		return "What is your phone number?"
	}
	return "Please provide your " + field + "."
}

func answeredFromSlots(slots []domain.Slot) []AnsweredRound {
	byID := make(map[int]domain.Slot, len(slots))
	for _, sl := range slots {
		byID[sl.ID] = sl
	}
	// rounds are asked in order, so only a contiguous answered prefix counts
	var out []AnsweredRound
	for id := 1; id <= domain.SlotsPerAttempt; id++ {
		sl, ok := byID[id]
		if !ok || !sl.Answered {
			break
		}
		r := AnsweredRound{SlotID: id, Question: sl.Question, Difficulty: sl.Difficulty, TimedOut: sl.TimedOut}
		if sl.Answer != nil {
			r.Answer = *sl.Answer
		}
		if sl.TimeTaken != nil {
			r.TimeTaken = *sl.TimeTaken
		}
		if sl.Score != nil {
			r.Score = *sl.Score
		}
		if sl.Feedback != nil {
			r.Feedback = *sl.Feedback
		}
		out = append(out, r)
	}
	return out
}

func (s *State) say(role, text string) {
	s.Transcript = append(s.Transcript, Message{Role: role, Text: text})
}

func (s State) clone() State {
	c := s
	c.Missing = append([]string{}, s.Missing...)
	c.Answered = append([]AnsweredRound(nil), s.Answered...)
	c.Transcript = append([]Message(nil), s.Transcript...)
	if s.Current != nil {
		r := *s.Current
		c.Current = &r
	}
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return c
}
