package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/questions.yaml
var defaultQuestionPool []byte

// QuestionPool holds the interview questions per difficulty tier.
type QuestionPool struct {
	Easy   []string `yaml:"easy"`
	Medium []string `yaml:"medium"`
	Hard   []string `yaml:"hard"`
}

// LoadQuestionPool reads the pool from path, or the embedded default pool when
// path is empty.
func LoadQuestionPool(path string) (QuestionPool, error) {
	content := defaultQuestionPool
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return QuestionPool{}, fmt.Errorf("op=config.LoadQuestionPool: %w", err)
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return QuestionPool{}, fmt.Errorf("op=config.LoadQuestionPool: file not found: %s", absPath)
		}
		// #nosec G304 -- operator-supplied configuration file
		content, err = os.ReadFile(absPath)
		if err != nil {
			return QuestionPool{}, fmt.Errorf("op=config.LoadQuestionPool: %w", err)
		}
	}
	return ParseQuestionPool(content)
}

// ParseQuestionPool decodes and validates a YAML question pool.
func ParseQuestionPool(content []byte) (QuestionPool, error) {
	var pool QuestionPool
	if err := yaml.Unmarshal(content, &pool); err != nil {
		return QuestionPool{}, fmt.Errorf("op=config.ParseQuestionPool: parse yaml: %w", err)
	}
	pool.Easy = cleanQuestions(pool.Easy)
	pool.Medium = cleanQuestions(pool.Medium)
	pool.Hard = cleanQuestions(pool.Hard)
	for tier, qs := range map[string][]string{"easy": pool.Easy, "medium": pool.Medium, "hard": pool.Hard} {
		// two questions of every tier are asked per attempt
		if len(qs) < 2 {
			return QuestionPool{}, fmt.Errorf("op=config.ParseQuestionPool: tier %s needs at least 2 questions, got %d", tier, len(qs))
		}
	}
	return pool, nil
}

func cleanQuestions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
