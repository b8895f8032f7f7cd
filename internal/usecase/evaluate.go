package usecase

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// LocalProvider names evaluations produced without an LLM.
const LocalProvider = "local"

const (
	judgeMaxTokens   = 120
	summaryMaxTokens = 80
)

var _ domain.AnswerEvaluator = EvaluateService{}

// EvaluateService scores answers through the LLM chain with a deterministic
// local fallback, and summarises finished attempts.
type EvaluateService struct {
	AI domain.AIClient
	// Truncate shortens an answer before it is sent upstream. Nil keeps it whole.
	Truncate func(answer string) string
}

// NewEvaluateService constructs an EvaluateService with its dependencies.
func NewEvaluateService(ai domain.AIClient, truncate func(string) string) EvaluateService {
	return EvaluateService{AI: ai, Truncate: truncate}
}

func validateAnswerInput(in domain.AnswerInput) error {
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%w: question is required", domain.ErrInvalidArgument)
	}
	if !in.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidArgument, in.Difficulty)
	}
	if in.TimeTaken < 0 {
		return fmt.Errorf("%w: timeTaken must not be negative", domain.ErrInvalidArgument)
	}
	return nil
}

// Evaluate scores one answer. Upstream failures never surface as errors;
// the result is scored locally and flagged with ServiceUnavailable.
func (s EvaluateService) Evaluate(ctx domain.Context, in domain.AnswerInput) (domain.Evaluation, error) {
	if err := validateAnswerInput(in); err != nil {
		return domain.Evaluation{}, err
	}
	if strings.TrimSpace(in.Answer) == "" {
		ev := HeuristicScore(in.Answer, in.Difficulty, in.TimeTaken)
		ev.Provider = LocalProvider
		return ev, nil
	}
	if s.AI == nil {
		return fallbackEvaluation(in), nil
	}

	answer := in.Answer
	if s.Truncate != nil {
		answer = s.Truncate(answer)
	}
	reply, err := s.AI.ChatJSON(ctx, judgeSystemPrompt(in.Difficulty), judgeUserPrompt(in.Question, answer), judgeMaxTokens)
	if err != nil {
		slog.Warn("answer evaluation fell back to local scoring",
			slog.String("difficulty", string(in.Difficulty)),
			slog.Any("error", err))
		return fallbackEvaluation(in), nil
	}
	ev := parseJudgeReply(reply)
	ev.Provider = s.AI.Provider()
	return ev, nil
}

func fallbackEvaluation(in domain.AnswerInput) domain.Evaluation {
	ev := HeuristicScore(in.Answer, in.Difficulty, in.TimeTaken)
	ev.Feedback = fallbackPrefix + ev.Feedback
	ev.Provider = LocalProvider
	ev.Error = ServiceUnavailable
	return ev
}

// TierBreakdown aggregates the slots of one difficulty tier.
type TierBreakdown struct {
	Questions      int     `json:"questions"`
	Answered       int     `json:"answered"`
	AverageScore   float64 `json:"averageScore"`
	EarnedPoints   float64 `json:"earnedPoints"`
	PossiblePoints int     `json:"possiblePoints"`
}

// FinalScore is the points-weighted result of an attempt.
type FinalScore struct {
	AverageScore    float64                             `json:"averageScore"`
	PercentageScore int                                 `json:"percentageScore"`
	TotalQuestions  int                                 `json:"totalQuestions"`
	EarnedPoints    int                                 `json:"earnedPoints"`
	TotalPoints     int                                 `json:"totalPossiblePoints"`
	Breakdown       map[domain.Difficulty]TierBreakdown `json:"difficultyBreakdown"`
}

// CalculateFinalScore weighs each slot's score by its tier points.
// Slots without a score count as zero.
func CalculateFinalScore(a domain.Attempt) FinalScore {
	fs := FinalScore{Breakdown: map[domain.Difficulty]TierBreakdown{}}
	var scoreSum, earned float64
	tierSums := map[domain.Difficulty]float64{}
	for _, q := range a.Questions {
		var score float64
		if q.Score != nil {
			score = *q.Score
		}
		pts := q.Difficulty.Points()
		fs.TotalQuestions++
		fs.TotalPoints += pts
		scoreSum += score
		earned += score * float64(pts) / 10

		tb := fs.Breakdown[q.Difficulty]
		tb.Questions++
		if q.Answered {
			tb.Answered++
		}
		tb.EarnedPoints += score * float64(pts) / 10
		tb.PossiblePoints += pts
		tierSums[q.Difficulty] += score
		fs.Breakdown[q.Difficulty] = tb
	}
	for d, tb := range fs.Breakdown {
		tb.AverageScore = round1(tierSums[d] / float64(tb.Questions))
		tb.EarnedPoints = round1(tb.EarnedPoints)
		fs.Breakdown[d] = tb
	}
	if fs.TotalQuestions == 0 {
		return fs
	}
	fs.AverageScore = round1(scoreSum / float64(fs.TotalQuestions))
	fs.EarnedPoints = int(math.Round(earned))
	fs.PercentageScore = int(math.Round(earned / float64(fs.TotalPoints) * 100))
	return fs
}

// Summary is the candidate-facing wrap-up of a finished attempt.
type Summary struct {
	Text       string     `json:"summary"`
	FinalScore FinalScore `json:"finalScore"`
	Provider   string     `json:"provider"`
	Error      string     `json:"error,omitempty"`
}

// Summarize returns an LLM written assessment, or a fixed template when no
// provider answers.
func (s EvaluateService) Summarize(ctx domain.Context, a domain.Attempt) (Summary, error) {
	fs := CalculateFinalScore(a)
	out := Summary{FinalScore: fs, Provider: LocalProvider, Text: fallbackSummary(fs)}
	if s.AI == nil {
		out.Error = ServiceUnavailable
		return out, nil
	}
	prompt := fmt.Sprintf("Interview summary: Score %s/10. Brief 1-sentence assessment:", formatScore(fs.AverageScore))
	reply, err := s.AI.ChatJSON(ctx, "You summarise technical interviews in one sentence.", prompt, summaryMaxTokens)
	if err != nil {
		slog.Warn("summary fell back to template", slog.String("attempt_id", a.ID), slog.Any("error", err))
		out.Error = ServiceUnavailable
		return out, nil
	}
	if text := strings.TrimSpace(reply); text != "" {
		out.Text = text
		out.Provider = s.AI.Provider()
	}
	return out, nil
}

func fallbackSummary(fs FinalScore) string {
	return fmt.Sprintf("Interview Complete - Score: %s/10 (%d%%). Answered %d questions with %d/%d points.",
		formatScore(fs.AverageScore), fs.PercentageScore, fs.TotalQuestions, fs.EarnedPoints, fs.TotalPoints)
}

func formatScore(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
