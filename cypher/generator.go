// Package cypher turns natural-language questions about contracts into
// executable Cypher through a single language-model call.
package cypher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/llm"
)

var (
	// ErrEmptyQuestion is returned for blank input.
	ErrEmptyQuestion = errors.New("cypher: question is empty")

	// ErrEmptyQuery is returned when the model produced no usable query.
	ErrEmptyQuery = errors.New("cypher: model returned an empty query")
)

var (
	leadingFenceRe  = regexp.MustCompile("^```(?:[A-Za-z0-9_-]*[ \t]*\\r?\\n)?")
	trailingFenceRe = regexp.MustCompile("\\r?\\n?```$")
)

// Clean strips a surrounding code fence, with or without a language tag,
// and surrounding whitespace.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFenceRe.ReplaceAllString(s, "")
	s = trailingFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Config controls the generation call.
type Config struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultConfig returns near-deterministic, short-output settings.
func DefaultConfig() Config {
	return Config{Temperature: 0.1, MaxTokens: 500}
}

// Generator produces Cypher from questions.
type Generator struct {
	chat   llm.Chatter
	cfg    Config
	system string
}

// NewGenerator builds a generator for catalog c. A nil catalog uses the
// embedded default.
func NewGenerator(chat llm.Chatter, c *Catalog, cfg Config) *Generator {
	if c == nil {
		c = DefaultCatalog()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Generator{chat: chat, cfg: cfg, system: SystemPrompt(c)}
}

// Generate returns a query for question. Every failure is a
// generation-stage *failure.Error; nothing is retried here.
func (g *Generator) Generate(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", failure.Generation(fmt.Errorf("%w: %w", ErrEmptyQuestion, failure.ErrInvalidInput))
	}

	start := time.Now()
	resp, err := g.chat.Chat(ctx, llm.ChatRequest{
		Model:       g.cfg.Model,
		Messages:    []llm.Message{llm.System(g.system), llm.User(UserPrompt(question))},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", failure.Generation(fmt.Errorf("chat: %w", err))
	}
	if resp == nil {
		return "", failure.Generation(ErrEmptyQuery)
	}

	query := Clean(resp.Content)
	if query == "" {
		return "", failure.Generation(ErrEmptyQuery)
	}

	slog.Debug("cypher: generated query",
		"model", resp.Model, "tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return query, nil
}
