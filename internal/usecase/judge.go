package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

// Texts returned by the local scorer.
const (
	defaultJudgeFeedback = "Evaluation completed"
	noAnswerFeedback     = "No answer provided."
	fallbackPrefix       = "AI services unavailable. Estimated score based on answer length and time: "
	// ServiceUnavailable flags an evaluation that was scored locally.
	ServiceUnavailable = "service_unavailable"
)

var (
	scorePattern    = regexp.MustCompile(`"score"\s*:\s*(\d+)`)
	feedbackPattern = regexp.MustCompile(`"feedback"\s*:\s*"([^"]+)"`)

	qualityKeywords = []string{
		"function", "const", "let", "var", "return", "if", "else",
		"for", "while", "class", "component", "react", "javascript",
		"algorithm", "data", "structure", "api", "database",
	}

	difficultyContext = map[domain.Difficulty]string{
		domain.DifficultyEasy:   "This is a basic/fundamental question. A good answer should demonstrate basic understanding.",
		domain.DifficultyMedium: "This is an intermediate question. A good answer should show practical knowledge and some depth.",
		domain.DifficultyHard:   "This is an advanced question. A good answer should demonstrate deep understanding, system design thinking, and real-world experience.",
	}
)

// judgeSystemPrompt frames the grader for the given tier.
func judgeSystemPrompt(d domain.Difficulty) string {
	return "You grade technical interview answers. " + difficultyContext[d] + " Reply with JSON only."
}

// judgeUserPrompt asks for a score and a short comment.
func judgeUserPrompt(question, answer string) string {
	return fmt.Sprintf(`Rate answer: %q for question: %q. Scale 1-10. JSON only:
{"score":8,"feedback":"brief comment"}`, answer, question)
}

// removeMarkdownBlocks strips code fences the model wraps JSON in.
func removeMarkdownBlocks(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// extractJSON returns the first balanced JSON object in s, or s unchanged.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s
}

type judgeReply struct {
	Score    *float64 `json:"score"`
	Accuracy *float64 `json:"accuracy"`
	Feedback string   `json:"feedback"`
}

// parseJudgeReply turns a model reply into an evaluation. Malformed replies
// fall back to regex extraction and then to defaults; it never fails.
func parseJudgeReply(raw string) domain.Evaluation {
	cleaned := extractJSON(removeMarkdownBlocks(raw))

	var r judgeReply
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		r = judgeReply{}
		if m := scorePattern.FindStringSubmatch(cleaned); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				r.Score = &v
			}
		}
		if m := feedbackPattern.FindStringSubmatch(cleaned); m != nil {
			r.Feedback = m[1]
		}
	}

	score := 5.0
	if r.Score != nil && *r.Score != 0 {
		score = *r.Score
	}
	score = clamp(score, 1, 10)
	accuracy := score * 10
	if r.Accuracy != nil && *r.Accuracy != 0 {
		accuracy = *r.Accuracy
	}
	feedback := strings.TrimSpace(r.Feedback)
	if feedback == "" {
		feedback = defaultJudgeFeedback
	}
	return domain.Evaluation{
		Score:    score,
		Accuracy: int(math.Round(clamp(accuracy, 0, 100))),
		Feedback: feedback,
	}
}

// HeuristicScore scores an answer locally from its length, keywords and the
// time taken relative to the tier's limit.
func HeuristicScore(answer string, d domain.Difficulty, timeTaken int) domain.Evaluation {
	if strings.TrimSpace(answer) == "" {
		return domain.Evaluation{Score: 1, Accuracy: 10, Feedback: noAnswerFeedback}
	}
	length := len([]rune(answer))
	words := len(strings.Fields(answer))

	base := 5.0
	if length > 100 {
		base += 2
	}
	if length > 200 {
		base++
	}
	if words > 20 {
		base++
	}
	lower := strings.ToLower(answer)
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			base++
			break
		}
	}

	ratio := float64(timeTaken) / float64(d.TimeLimit())
	switch {
	case ratio < 0.5:
		base += 0.5
	case ratio > 0.9:
		base -= 0.5
	}

	score := clamp(math.Floor(base*difficultyMultiplier(d)+0.5), 1, 10)

	var feedback string
	switch {
	case length > 50:
		feedback = "Good attempt with reasonable detail. Answer shows understanding of the topic."
	case length > 20:
		feedback = "Basic answer provided. Could benefit from more elaboration and examples."
	default:
		feedback = "Very brief answer. Consider providing more detailed explanations and examples."
	}
	return domain.Evaluation{Score: score, Accuracy: int(math.Round(score * 10)), Feedback: feedback}
}

func difficultyMultiplier(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyEasy:
		return 0.8
	case domain.DifficultyHard:
		return 1.2
	}
	return 1.0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
