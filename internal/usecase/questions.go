package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// Question sources.
const (
	SourcePool = "pool"
	SourceLLM  = "llm"
)

const (
	questionMaxTokens   = 80
	questionResumeChars = 4000
)

// NextQuestion is the question to ask next with its tier settings.
type NextQuestion struct {
	Question   string            `json:"question"`
	Difficulty domain.Difficulty `json:"difficulty"`
	TimeLimit  int               `json:"timeLimit"`
	Points     int               `json:"points"`
	Source     string            `json:"source"`
}

// QuestionService picks the next question, optionally grounded on the
// candidate's resume by the LLM chain.
type QuestionService struct {
	Pool domain.QuestionSupplier
	AI   domain.AIClient
	// Grounded asks the LLM first when a resume is available.
	Grounded bool
}

// NewQuestionService constructs a QuestionService with its dependencies.
func NewQuestionService(pool domain.QuestionSupplier, ai domain.AIClient, grounded bool) QuestionService {
	return QuestionService{Pool: pool, AI: ai, Grounded: grounded}
}

// Next returns a question of req.Difficulty that was not asked before.
func (s QuestionService) Next(ctx domain.Context, req domain.QuestionRequest) (NextQuestion, error) {
	if !req.Difficulty.Valid() {
		return NextQuestion{}, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidArgument, req.Difficulty)
	}
	out := NextQuestion{
		Difficulty: req.Difficulty,
		TimeLimit:  req.Difficulty.TimeLimit(),
		Points:     req.Difficulty.Points(),
	}
	if q, ok := s.grounded(ctx, req); ok {
		out.Question, out.Source = q, SourceLLM
		return out, nil
	}
	q, err := s.Pool.Next(ctx, req)
	if err != nil {
		return NextQuestion{}, fmt.Errorf("op=questions.next: %w", err)
	}
	out.Question, out.Source = q, SourcePool
	return out, nil
}

// grounded asks the LLM for a resume based question. Failures and repeats
// report false so the pool is used instead.
func (s QuestionService) grounded(ctx domain.Context, req domain.QuestionRequest) (string, bool) {
	if !s.Grounded || s.AI == nil || strings.TrimSpace(req.ResumeText) == "" {
		return "", false
	}
	reply, err := s.AI.ChatJSON(ctx, groundingSystemPrompt, groundingUserPrompt(req), questionMaxTokens)
	if err != nil {
		slog.Warn("question grounding failed, using pool", slog.Any("error", err))
		return "", false
	}
	q := cleanQuestion(reply)
	if q == "" {
		return "", false
	}
	if _, repeat := domain.AskedSet(req.Asked)[domain.NormalizeQuestion(q)]; repeat {
		slog.Debug("grounded question repeated, using pool")
		return "", false
	}
	return q, true
}

const groundingSystemPrompt = "You interview candidates for a React/Node full stack role. Reply with a single short question and nothing else."

func groundingUserPrompt(req domain.QuestionRequest) string {
	resume := req.ResumeText
	if r := []rune(resume); len(r) > questionResumeChars {
		resume = string(r[:questionResumeChars])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write one %s question (answerable in %d seconds) grounded on this resume:\n%s\n", req.Difficulty, req.Difficulty.TimeLimit(), resume)
	if len(req.Asked) > 0 {
		b.WriteString("Do not repeat any of these questions:\n")
		for _, q := range req.Asked {
			b.WriteString("- " + q + "\n")
		}
	}
	return b.String()
}

// cleanQuestion keeps the first non-empty line without fences or quotes.
func cleanQuestion(reply string) string {
	reply = removeMarkdownBlocks(reply)
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line != "" {
			return line
		}
	}
	return ""
}
