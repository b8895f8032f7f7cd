package chatflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/chatflow"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

func parsed(missing ...string) usecase.ParsedResume {
	return usecase.ParsedResume{
		Text:     "Ada Lovelace\nada@x.com\n555-010-0100",
		FileType: "pdf",
		Extracted: usecase.CandidateFields{
			Name: "Ada Lovelace", Email: "ada@x.com", Phone: "555-010-0100",
		},
		MissingFields: append([]string{}, missing...),
	}
}

func mustReduce(t *testing.T, s chatflow.State, ev chatflow.Event) chatflow.State {
	t.Helper()
	next, err := chatflow.Reduce(s, ev)
	require.NoError(t, err)
	return next
}

func TestReduce_UploadToReady(t *testing.T) {
	s := mustReduce(t, chatflow.NewState(), chatflow.ResumeParsed{FileName: "cv.pdf", Parsed: parsed()})
	assert.Equal(t, domain.PhaseReady, s.Phase)
	assert.Equal(t, "ada@x.com", s.Fields.Email)
	assert.Equal(t, "pdf", s.Resume.FileType)
	assert.Empty(t, s.Missing)
}

func TestReduce_CollectMissingFields(t *testing.T) {
	p := parsed("name", "phone")
	p.Extracted.Name = usecase.NameNotFound
	s := mustReduce(t, chatflow.NewState(), chatflow.ResumeParsed{Parsed: p})
	require.Equal(t, domain.PhaseCollecting, s.Phase)
	assert.Empty(t, s.Fields.Name)
	assert.Equal(t, []string{"name", "phone"}, s.Missing)

	_, err := chatflow.Reduce(s, chatflow.FieldProvided{Field: "phone", Value: "555-010-0100"})
	assert.ErrorIs(t, err, chatflow.ErrIllegalTransition, "fields are collected in order")

	_, err = chatflow.Reduce(s, chatflow.FieldProvided{Field: "name", Value: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	s = mustReduce(t, s, chatflow.FieldProvided{Field: "name", Value: "  Ada Lovelace "})
	assert.Equal(t, "Ada Lovelace", s.Fields.Name)
	assert.Equal(t, domain.PhaseCollecting, s.Phase)

	s = mustReduce(t, s, chatflow.FieldProvided{Field: "phone", Value: "(555) 010-0100"})
	assert.Equal(t, domain.PhaseReady, s.Phase)
	assert.Equal(t, "(555) 010-0100", s.Fields.Phone)
}

func TestReduce_EmailIsNormalized(t *testing.T) {
	p := parsed("email")
	s := mustReduce(t, chatflow.NewState(), chatflow.ResumeParsed{Parsed: p})
	s = mustReduce(t, s, chatflow.FieldProvided{Field: "email", Value: " Ada@X.com "})
	assert.Equal(t, "ada@x.com", s.Fields.Email)
}

func readyState(t *testing.T) chatflow.State {
	t.Helper()
	return mustReduce(t, chatflow.NewState(), chatflow.ResumeParsed{Parsed: parsed()})
}

func TestReduce_InterviewRounds(t *testing.T) {
	s := mustReduce(t, readyState(t), chatflow.AttemptStarted{AttemptID: "att-1"})
	require.Equal(t, domain.PhaseInterview, s.Phase)
	assert.Equal(t, 1, s.NextSlot())

	_, err := chatflow.Reduce(s, chatflow.QuestionAsked{SlotID: 2, Question: "q", Difficulty: domain.DifficultyEasy, TimeLimit: 20})
	assert.ErrorIs(t, err, chatflow.ErrIllegalTransition)
	_, err = chatflow.Reduce(s, chatflow.QuestionAsked{SlotID: 1, Question: "q", Difficulty: domain.DifficultyHard, TimeLimit: 20})
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
	_, err = chatflow.Reduce(s, chatflow.AnswerScored{Answer: "a"})
	assert.ErrorIs(t, err, chatflow.ErrIllegalTransition, "no question on screen")

	for i, d := range domain.DifficultyLadder {
		s = mustReduce(t, s, chatflow.QuestionAsked{SlotID: i + 1, Question: "Q" + string(rune('1'+i)), Difficulty: d, TimeLimit: d.TimeLimit()})
		s = mustReduce(t, s, chatflow.Tick{Remaining: d.TimeLimit() - 3})
		assert.Equal(t, d.TimeLimit()-3, s.Current.Remaining)
		if i < domain.SlotsPerAttempt-1 {
			_, err = chatflow.Reduce(s, chatflow.Completed{})
			assert.ErrorIs(t, err, chatflow.ErrIllegalTransition)
		}
		s = mustReduce(t, s, chatflow.AnswerScored{Answer: "a", TimeTaken: 3, Evaluation: domain.Evaluation{Score: 7, Feedback: "ok"}})
		assert.Nil(t, s.Current)
	}
	assert.Equal(t, []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6"}, s.Asked())

	s = mustReduce(t, s, chatflow.Completed{TotalScore: 42, AverageScore: 7, Summary: "Solid."})
	assert.Equal(t, domain.PhaseCompleted, s.Phase)
	assert.Equal(t, &chatflow.Result{AttemptID: "att-1", TotalScore: 42, AverageScore: 7, Summary: "Solid."}, s.Result)

	_, err = chatflow.Reduce(s, chatflow.Tick{Remaining: 1})
	assert.ErrorIs(t, err, chatflow.ErrIllegalTransition)

	s = mustReduce(t, s, chatflow.Reset{})
	assert.Equal(t, chatflow.NewState(), s)
}

func TestReduce_TickClamps(t *testing.T) {
	s := mustReduce(t, readyState(t), chatflow.AttemptStarted{AttemptID: "att-1"})
	s = mustReduce(t, s, chatflow.QuestionAsked{SlotID: 1, Question: "q", Difficulty: domain.DifficultyEasy, TimeLimit: 20})
	assert.Equal(t, 0, mustReduce(t, s, chatflow.Tick{Remaining: -5}).Current.Remaining)
	assert.Equal(t, 20, mustReduce(t, s, chatflow.Tick{Remaining: 99}).Current.Remaining)
}

func TestReduce_ResumedAttemptKeepsAnsweredPrefix(t *testing.T) {
	score, answer := 8.0, "useEffect"
	slots := []domain.Slot{
		{ID: 1, Question: "Q1", Difficulty: domain.DifficultyEasy, Answered: true, Answer: &answer, Score: &score},
		{ID: 3, Question: "Q3", Difficulty: domain.DifficultyMedium, Answered: true, Score: &score},
		{ID: 2, Question: "Q2", Difficulty: domain.DifficultyEasy, Answered: false},
	}
	s := mustReduce(t, readyState(t), chatflow.AttemptStarted{AttemptID: "att-1", Questions: slots})
	require.Len(t, s.Answered, 1)
	assert.Equal(t, "useEffect", s.Answered[0].Answer)
	assert.Equal(t, 2, s.NextSlot())
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := mustReduce(t, readyState(t), chatflow.AttemptStarted{AttemptID: "att-1"})
	s = mustReduce(t, s, chatflow.QuestionAsked{SlotID: 1, Question: "q", Difficulty: domain.DifficultyEasy, TimeLimit: 20})
	before := len(s.Transcript)

	_ = mustReduce(t, s, chatflow.Tick{Remaining: 5})
	_ = mustReduce(t, s, chatflow.AnswerScored{Answer: "a"})
	assert.Equal(t, 20, s.Current.Remaining)
	assert.Len(t, s.Transcript, before)
	assert.Empty(t, s.Answered)
}

func TestState_JSONCarriesChatPhase(t *testing.T) {
	b, err := json.Marshal(readyState(t))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "ready", m["chatPhase"])
}
