// Package retrieval implements the similarity path: the question is
// embedded and matched against the contract corpus without any graph
// structure.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/clausegraph/llm"
	"github.com/brunobiangulo/clausegraph/store"
)

// ErrNoEmbedder is returned when a vector search is requested without an
// embedding provider.
var ErrNoEmbedder = errors.New("retrieval: no embedding provider configured")

// Match is one similar contract.
type Match struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Text       string  `json:"text,omitempty"`
	NumClauses int     `json:"num_clauses"`
	Context    string  `json:"context"`
	Similarity float64 `json:"similarity,omitempty"`
	// Snippet holds the sentences of Text closest to the question.
	Snippet string `json:"snippet,omitempty"`
}

// Options configures a single search.
type Options struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Count     int     `json:"count" yaml:"count"`
}

// DefaultOptions returns threshold 0.7 and 10 results.
func DefaultOptions() Options {
	return Options{Threshold: 0.7, Count: 10}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Count <= 0 {
		o.Count = d.Count
	}
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	return o
}

// Searcher finds contracts similar to a question.
type Searcher interface {
	Search(ctx context.Context, question string, opts Options) ([]Match, error)
}

// Config holds hybrid search weights.
type Config struct {
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`
}

// SearchTrace records the breakdown of one hybrid search.
type SearchTrace struct {
	VecResults   int                        `json:"vec_results"`
	FTSResults   int                        `json:"fts_results"`
	FusedResults int                        `json:"fused_results"`
	FTSQuery     string                     `json:"fts_query"`
	ElapsedMs    int64                      `json:"elapsed_ms"`
	PerResult    map[string]FusedResultInfo `json:"per_result,omitempty"`
}

// Hybrid searches the local SQLite mirror with vector KNN and FTS5 and
// fuses both rankings with RRF.
type Hybrid struct {
	store    *store.Store
	embedder llm.Embedder
	cfg      Config
}

// NewHybrid creates a hybrid searcher. embedder may be nil, in which case
// only full-text search runs.
func NewHybrid(s *store.Store, embedder llm.Embedder, cfg Config) *Hybrid {
	if cfg.WeightVector == 0 && cfg.WeightFTS == 0 {
		cfg.WeightVector, cfg.WeightFTS = 1.0, 1.0
	}
	return &Hybrid{store: s, embedder: embedder, cfg: cfg}
}

// Search implements Searcher.
func (h *Hybrid) Search(ctx context.Context, question string, opts Options) ([]Match, error) {
	matches, _, err := h.SearchWithTrace(ctx, question, opts)
	return matches, err
}

// SearchWithTrace runs the search and reports how each method contributed.
// Vector hits under the similarity threshold are dropped before fusion.
func (h *Hybrid) SearchWithTrace(ctx context.Context, question string, opts Options) ([]Match, *SearchTrace, error) {
	opts = opts.withDefaults()
	start := time.Now()
	trace := &SearchTrace{FTSQuery: sanitizeFTSQuery(question)}

	var vec []store.SearchResult
	if h.embedder != nil {
		embs, err := h.embedder.Embed(ctx, []string{question})
		if err != nil {
			return nil, trace, fmt.Errorf("embedding question: %w", err)
		}
		if len(embs) == 0 || len(embs[0]) == 0 {
			return nil, trace, fmt.Errorf("embedding question: empty embedding")
		}
		all, err := h.store.VectorSearch(ctx, embs[0], opts.Count*2)
		if err != nil {
			return nil, trace, fmt.Errorf("vector search: %w", err)
		}
		for _, r := range all {
			if r.Score >= opts.Threshold {
				vec = append(vec, r)
			}
		}
	}
	trace.VecResults = len(vec)

	var fts []store.SearchResult
	if trace.FTSQuery != "" {
		var err error
		fts, err = h.store.FTSSearch(ctx, trace.FTSQuery, opts.Count*2)
		if err != nil {
			// A malformed MATCH expression should not sink the vector results.
			slog.Warn("retrieval: fts search failed", "query", trace.FTSQuery, "error", err)
			fts = nil
		}
	}
	trace.FTSResults = len(fts)

	fused, info := fuseRRF(vec, fts, h.cfg.WeightVector, h.cfg.WeightFTS, opts.Count)
	trace.FusedResults = len(fused)
	trace.PerResult = info
	trace.ElapsedMs = time.Since(start).Milliseconds()

	matches := make([]Match, len(fused))
	for i, r := range fused {
		matches[i] = Match{
			ID:         r.ID,
			Title:      r.Title,
			Text:       r.Text,
			NumClauses: r.NumClauses,
			Context:    r.Context,
			Similarity: info[r.ID].VecSim,
		}
	}

	slog.Debug("retrieval: hybrid search complete",
		"vec", trace.VecResults, "fts", trace.FTSResults, "fused", trace.FusedResults,
		"elapsed_ms", trace.ElapsedMs)
	return withSnippets(matches, question), trace, nil
}
