// Package analysis asks a language model to interpret a normalized query
// result and wraps everything into the response envelope.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/clausegraph/cypher"
	"github.com/brunobiangulo/clausegraph/llm"
	"github.com/brunobiangulo/clausegraph/normalize"
)

const defaultSummary = "Analysis completed"

// Analysis is the model's reading of a result.
type Analysis struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	RiskFlags       []string `json:"riskFlags,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Config controls the analysis call.
type Config struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultConfig returns the analysis call settings.
func DefaultConfig() Config {
	return Config{Temperature: 0.3, MaxTokens: 1200}
}

// Analyzer produces an Analysis for a result. A nil chat collaborator is
// allowed and yields the count-based summary.
type Analyzer struct {
	chat llm.Chatter
	cfg  Config
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(chat llm.Chatter, cfg Config) *Analyzer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Analyzer{chat: chat, cfg: cfg}
}

// Analyze never fails. Collaborator errors degrade to a summary built from
// the result counts; unparseable output degrades to a line-based reading.
func (a *Analyzer) Analyze(ctx context.Context, question string, res *normalize.Result) Analysis {
	if a == nil || a.chat == nil {
		return fromCounts(res)
	}

	start := time.Now()
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    []llm.Message{llm.System(systemPrompt), llm.User(buildPrompt(question, res))},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		slog.Warn("analysis: model call failed, using count summary", "error", err)
		return fromCounts(res)
	}
	if resp == nil {
		slog.Warn("analysis: empty model response, using count summary")
		return fromCounts(res)
	}

	slog.Debug("analysis: model call complete",
		"model", resp.Model, "tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return Parse(resp.Content)
}

// Parse reads the model's JSON answer, stripping a code fence first.
// Anything that is not a JSON object becomes a first-line summary plus
// one insight per remaining non-empty line.
func Parse(text string) Analysis {
	var parsed struct {
		Summary         string   `json:"summary"`
		Insights        []string `json:"insights"`
		RiskFlags       []string `json:"riskFlags"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cypher.Clean(text)), &parsed); err == nil {
		out := Analysis{
			Summary:         parsed.Summary,
			Insights:        parsed.Insights,
			RiskFlags:       parsed.RiskFlags,
			Recommendations: parsed.Recommendations,
		}
		if out.Summary == "" {
			out.Summary = defaultSummary
		}
		if out.Insights == nil {
			out.Insights = []string{}
		}
		return out
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := Analysis{Summary: strings.TrimSpace(lines[0]), Insights: []string{}}
	if out.Summary == "" {
		out.Summary = defaultSummary
	}
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(l); l != "" {
			out.Insights = append(out.Insights, l)
		}
	}
	return out
}

func fromCounts(res *normalize.Result) Analysis {
	out := Analysis{Insights: []string{}}
	if res == nil {
		out.Summary = defaultSummary
		return out
	}

	out.Summary = fmt.Sprintf("Query returned %d rows: %d contracts, %d clause matches.",
		len(res.RawResults), len(res.Contracts), len(res.Clauses))
	if !res.Aggregations.Empty() {
		if keys := res.Aggregations.Fields.Keys(); len(keys) > 0 {
			out.Insights = append(out.Insights, "Aggregated fields: "+strings.Join(keys, ", "))
		}
		if n := len(res.Aggregations.Groups); n > 0 {
			out.Insights = append(out.Insights, fmt.Sprintf("%d groups in the aggregation", n))
		}
	}
	if res.HasDualCapability() {
		out.Insights = append(out.Insights, "Result combines aggregated counts with contract and clause detail.")
	}
	return out
}
