// Package questions serves interview questions from the configured pool.
package questions

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.QuestionSupplier = (*Pool)(nil)

// Pool picks random questions of a tier, skipping ones already asked.
type Pool struct {
	tiers map[domain.Difficulty][]string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPool builds a supplier over the configured pool.
func NewPool(p config.QuestionPool) *Pool {
	return NewPoolWithSource(p, rand.NewSource(time.Now().UnixNano()))
}

// NewPoolWithSource is NewPool with a caller supplied random source.
func NewPoolWithSource(p config.QuestionPool, src rand.Source) *Pool {
	return &Pool{
		tiers: map[domain.Difficulty][]string{
			domain.DifficultyEasy:   append([]string(nil), p.Easy...),
			domain.DifficultyMedium: append([]string(nil), p.Medium...),
			domain.DifficultyHard:   append([]string(nil), p.Hard...),
		},
		rnd: rand.New(src), //nolint:gosec // question order is not security sensitive
	}
}

// Size returns how many questions the tier holds.
func (p *Pool) Size(d domain.Difficulty) int { return len(p.tiers[d]) }

// Next returns a question of req.Difficulty not in req.Asked. Once the tier is
// exhausted the whole tier is eligible again.
func (p *Pool) Next(_ domain.Context, req domain.QuestionRequest) (string, error) {
	tier := p.tiers[req.Difficulty]
	if len(tier) == 0 {
		return "", fmt.Errorf("op=questions.next: %w: no questions for difficulty %q", domain.ErrInvalidArgument, req.Difficulty)
	}
	asked := domain.AskedSet(req.Asked)
	candidates := make([]string, 0, len(tier))
	for _, q := range tier {
		if _, ok := asked[domain.NormalizeQuestion(q)]; !ok {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		candidates = tier
	}
	p.mu.Lock()
	i := p.rnd.Intn(len(candidates))
	p.mu.Unlock()
	return candidates[i], nil
}
