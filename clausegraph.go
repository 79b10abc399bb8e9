// Package clausegraph answers natural-language questions about a contract
// knowledge graph. A question is turned into Cypher, run against the graph,
// normalized into one canonical result and summarized. The similarity path
// runs the same question through vector search and explains what it cannot
// answer.
package clausegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/cache"
	"github.com/brunobiangulo/clausegraph/cypher"
	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/graphdb"
	"github.com/brunobiangulo/clausegraph/limitation"
	"github.com/brunobiangulo/clausegraph/llm"
	"github.com/brunobiangulo/clausegraph/metrics"
	"github.com/brunobiangulo/clausegraph/normalize"
	"github.com/brunobiangulo/clausegraph/queries"
	"github.com/brunobiangulo/clausegraph/retrieval"
	"github.com/brunobiangulo/clausegraph/store"
)

// Engine is the main entry point.
type Engine interface {
	// Query runs question through generation, execution, normalization
	// and analysis.
	Query(ctx context.Context, question string, opts ...QueryOption) (*analysis.Envelope, error)

	// Cypher returns the query generated for question without running it.
	Cypher(ctx context.Context, question string) (string, error)

	// QueryShowcase runs the showcase query with the given id. When the
	// graph path fails, a previously cached envelope is returned instead.
	QueryShowcase(ctx context.Context, id string, opts ...QueryOption) (*analysis.Envelope, error)

	// Similarity runs question through vector search. A non-empty category
	// selects the limitation verdict; otherwise it is detected.
	Similarity(ctx context.Context, question, category string) (*SimilarityResponse, error)

	// SimilarityShowcase runs the showcase query with the given id through
	// vector search.
	SimilarityShowcase(ctx context.Context, id string) (*SimilarityResponse, error)

	// Classify returns the limitation verdict for question.
	Classify(question, category string) limitation.Verdict

	// Showcase returns the showcase query set.
	Showcase() *queries.Set

	// WarmCache runs every showcase query and persists its envelope.
	WarmCache(ctx context.Context) ([]WarmResult, error)

	// RecentQueries returns the newest query log entries.
	RecentQueries(ctx context.Context, limit int) ([]store.QueryLog, error)

	// Metrics returns the engine's recorder, possibly nil.
	Metrics() *metrics.Recorder

	// Close releases database connections.
	Close() error
}

// SimilarityResponse is the result of the similarity path.
type SimilarityResponse struct {
	Query         string             `json:"query"`
	Results       []retrieval.Match  `json:"results"`
	ExecutionTime int64              `json:"executionTime"`
	Limitation    limitation.Verdict `json:"limitation"`
	Count         int                `json:"count"`
	Note          string             `json:"note"`
}

// WarmResult reports one showcase query run by WarmCache.
type WarmResult struct {
	ID    string          `json:"id"`
	Shape normalize.Shape `json:"shape,omitempty"`
	Rows  int             `json:"rows"`
	Error string          `json:"error,omitempty"`
}

// QueryOption configures a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	cypher     string
	rows       []normalize.Row
	hasRows    bool
	heuristics *normalize.Heuristics
	meta       *analysis.QueryMetadata
	noFallback bool
}

// WithCypher skips generation and runs the given query.
func WithCypher(q string) QueryOption {
	return func(o *queryOptions) { o.cypher = strings.TrimSpace(q) }
}

// WithRows skips execution and normalizes rows as if the graph returned
// them. An empty slice is an empty result, not a skipped option.
func WithRows(rows []normalize.Row) QueryOption {
	return func(o *queryOptions) {
		o.rows = rows
		o.hasRows = true
	}
}

// WithHeuristics overrides the aggregation heuristics for this query.
func WithHeuristics(h normalize.Heuristics) QueryOption {
	return func(o *queryOptions) { o.heuristics = &h }
}

// WithMetadata attaches showcase metadata to the envelope.
func WithMetadata(m *analysis.QueryMetadata) QueryOption {
	return func(o *queryOptions) { o.meta = m }
}

// withoutFallback disables the cached fallback, so WarmCache never
// re-saves a cached envelope.
func withoutFallback() QueryOption {
	return func(o *queryOptions) { o.noFallback = true }
}

// Option injects a collaborator into New, replacing the one built from
// Config.
type Option func(*engine)

// WithChat sets the chat provider used for generation and analysis.
func WithChat(c llm.Chatter) Option {
	return func(e *engine) { e.chat = c }
}

// WithExecutor sets the graph executor.
func WithExecutor(x graphdb.Executor) Option {
	return func(e *engine) { e.executor = x }
}

// WithSearcher sets the similarity backend.
func WithSearcher(s retrieval.Searcher) Option {
	return func(e *engine) { e.searcher = s }
}

// WithCache sets the envelope cache.
func WithCache(c cache.Store) Option {
	return func(e *engine) { e.cache = c }
}

// WithStore sets the local store used for the query log.
func WithStore(s *store.Store) Option {
	return func(e *engine) { e.store = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *engine) { e.metrics = m }
}

// WithShowcase replaces the showcase query set.
func WithShowcase(s *queries.Set) Option {
	return func(e *engine) { e.showcase = s }
}

// WithClock replaces time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	chat      llm.Chatter
	embedder  llm.Embedder
	generator *cypher.Generator
	executor  graphdb.Executor
	assembler *analysis.Assembler
	searcher  retrieval.Searcher
	cache     cache.Store
	store     *store.Store
	showcase  *queries.Set
	metrics   *metrics.Recorder
	now       func() time.Time

	closers []func() error
}

// New creates an engine from cfg. Collaborators injected with opts are
// used as given; the rest are built from cfg. A graph database or
// similarity backend that is not configured is reported per request, not
// here.
func New(ctx context.Context, cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) build(ctx context.Context) error {
	cfg := e.cfg

	if e.chat == nil {
		p, err := llm.NewProvider(ctx, cfg.Chat.provider())
		if err != nil {
			return fmt.Errorf("creating chat provider: %w", err)
		}
		e.chat = p
	}

	catalog := cypher.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := cypher.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		catalog = c
	}
	e.generator = cypher.NewGenerator(e.chat, catalog, cfg.Generation)
	e.assembler = analysis.NewAssembler(analysis.NewAnalyzer(e.chat, cfg.Analysis), analysis.WithClock(e.now))

	if e.showcase == nil {
		e.showcase = queries.Default()
		if cfg.QueriesPath != "" {
			s, err := queries.Load(cfg.QueriesPath)
			if err != nil {
				return fmt.Errorf("loading queries: %w", err)
			}
			e.showcase = s
		}
	}

	if e.executor == nil {
		e.executor = graphdb.Unconfigured
		if cfg.Neo4j.Configured() {
			n, err := graphdb.NewNeo4j(cfg.Neo4j)
			if err != nil {
				return err
			}
			e.executor = n
			e.closers = append(e.closers, func() error { return n.Close(context.Background()) })
		} else {
			slog.Warn("clausegraph: neo4j not configured, graph queries will fail")
		}
	}

	if e.store == nil && cfg.DBPath != "" {
		s, err := store.New(cfg.DBPath, cfg.EmbeddingDim)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		e.store = s
		e.closers = append(e.closers, s.Close)
	}

	if e.searcher == nil {
		if err := e.buildSearcher(ctx); err != nil {
			return err
		}
	}

	if e.cache == nil {
		c, err := buildCache(cfg.Cache)
		if err != nil {
			return err
		}
		e.cache = c
	}
	return nil
}

func (e *engine) buildSearcher(ctx context.Context) error {
	cfg := e.cfg
	if cfg.DatabaseURL == "" && e.store == nil {
		return nil
	}

	if cfg.Embedding.Provider != "" {
		p, err := llm.NewProvider(ctx, cfg.Embedding.provider())
		if err != nil {
			return fmt.Errorf("creating embedding provider: %w", err)
		}
		e.embedder = p
	}

	if cfg.DatabaseURL != "" {
		pg, err := retrieval.NewPostgres(cfg.DatabaseURL, e.embedder)
		if err != nil {
			return fmt.Errorf("opening postgres: %w", err)
		}
		e.searcher = pg
		e.closers = append(e.closers, pg.Close)
		return nil
	}

	e.searcher = retrieval.NewHybrid(e.store, e.embedder, retrieval.Config{
		WeightVector: cfg.WeightVector,
		WeightFTS:    cfg.WeightFTS,
	})
	return nil
}

func buildCache(cfg CacheConfig) (cache.Store, error) {
	var backing cache.Store
	switch {
	case cfg.S3 != nil && cfg.S3.Bucket != "":
		s, err := cache.NewS3(*cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("creating s3 cache: %w", err)
		}
		backing = s
	case cfg.Dir != "":
		d, err := cache.NewDisk(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("creating disk cache: %w", err)
		}
		backing = d
	}

	if cfg.MemoryEntries > 0 {
		l, err := cache.NewLRU(cfg.MemoryEntries, backing)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	if backing == nil {
		return nil, nil
	}
	return backing, nil
}

// Query runs the graph path for question.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*analysis.Envelope, error) {
	o := &queryOptions{}
	for _, fn := range opts {
		fn(o)
	}
	question = strings.TrimSpace(question)
	requestID := uuid.NewString()

	env, err := e.run(ctx, question, requestID, o)
	if err == nil {
		return env, nil
	}

	e.metrics.Failure(err)
	e.logQuery(ctx, store.QueryLog{
		RequestID:  requestID,
		Question:   question,
		QueryID:    metaID(o.meta),
		Cypher:     o.cypher,
		ErrorStage: string(stageOf(err)),
		ErrorKind:  string(failure.KindOf(err)),
	})

	if cached := e.fallback(ctx, o, err); cached != nil {
		cached.RequestID = requestID
		e.logQuery(ctx, logEntry(requestID, question, cached))
		return cached, nil
	}
	return nil, err
}

func (e *engine) run(ctx context.Context, question, requestID string, o *queryOptions) (*analysis.Envelope, error) {
	if question == "" {
		return nil, failure.Generation(fmt.Errorf("%w: %w", ErrEmptyQuestion, failure.ErrInvalidInput))
	}

	start := time.Now()
	query := o.cypher
	if query == "" {
		t := time.Now()
		q, err := e.generator.Generate(ctx, question)
		e.metrics.Since(metrics.StageGenerate, t)
		if err != nil {
			return nil, err
		}
		query = q
		o.cypher = q
	}

	rows := o.rows
	if !o.hasRows {
		t := time.Now()
		r, err := e.executor.Run(ctx, query)
		e.metrics.Since(metrics.StageExecute, t)
		if err != nil {
			return nil, failure.Execution(err)
		}
		rows = r
	}
	elapsed := time.Since(start)

	t := time.Now()
	var nopts []normalize.Option
	if o.heuristics != nil {
		nopts = append(nopts, normalize.WithHeuristics(*o.heuristics))
	}
	res := normalize.Normalize(query, elapsed, rows, nopts...)
	e.metrics.Since(metrics.StageNormalize, t)
	e.metrics.Shape(res.Shape)

	t = time.Now()
	env := e.assembler.Assemble(ctx, question, res, o.meta)
	e.metrics.Since(metrics.StageAnalyze, t)
	env.RequestID = requestID

	slog.Info("clausegraph: query complete",
		"request_id", requestID,
		"shape", res.Shape,
		"rows", len(rows),
		"contracts", len(res.Contracts),
		"clauses", len(res.Clauses),
		"elapsed_ms", res.ExecutionTime)
	e.logQuery(ctx, logEntry(requestID, question, env))
	return env, nil
}

// Cypher runs the generation stage alone.
func (e *engine) Cypher(ctx context.Context, question string) (string, error) {
	start := time.Now()
	q, err := e.generator.Generate(ctx, question)
	e.metrics.Since(metrics.StageGenerate, start)
	if err != nil {
		e.metrics.Failure(err)
		return "", err
	}
	return q, nil
}

// fallback returns the cached envelope for a failed showcase query, or nil.
func (e *engine) fallback(ctx context.Context, o *queryOptions, cause error) *analysis.Envelope {
	if o.noFallback || o.meta == nil || o.meta.ID == "" || e.cache == nil {
		return nil
	}
	if !errors.Is(cause, failure.ErrGeneration) && !errors.Is(cause, failure.ErrExecution) {
		return nil
	}

	env, err := e.cache.Load(ctx, o.meta.ID)
	e.metrics.CacheFallback(err == nil)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.Warn("clausegraph: loading cached result failed", "query_id", o.meta.ID, "error", err)
		}
		return nil
	}
	slog.Warn("clausegraph: serving cached result",
		"query_id", o.meta.ID,
		"stage", stageOf(cause),
		"kind", failure.KindOf(cause),
		"error", cause)
	env.Cached = true
	return env
}

// QueryShowcase runs the showcase query id on the graph path.
func (e *engine) QueryShowcase(ctx context.Context, id string, opts ...QueryOption) (*analysis.Envelope, error) {
	q, ok := e.showcase.ByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, id)
	}
	meta := &analysis.QueryMetadata{ID: q.ID, Description: q.Description, Category: q.Category}
	return e.Query(ctx, q.Query, append([]QueryOption{WithMetadata(meta)}, opts...)...)
}

// Similarity runs question through vector search and attaches the
// limitation verdict.
func (e *engine) Similarity(ctx context.Context, question, category string) (*SimilarityResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: %w", ErrEmptyQuestion, failure.ErrInvalidInput)
	}
	if e.searcher == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSearcher, failure.ErrUnconfigured)
	}

	start := time.Now()
	matches, err := e.searcher.Search(ctx, question, e.cfg.Retrieval)
	e.metrics.Since(metrics.StageRetrieve, start)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if matches == nil {
		matches = []retrieval.Match{}
	}

	verdict := limitation.Classify(question, category)
	e.metrics.Limitation(verdict.Type)
	slog.Info("clausegraph: similarity search complete",
		"results", len(matches), "limitation", verdict.Type)

	return &SimilarityResponse{
		Query:         question,
		Results:       matches,
		ExecutionTime: time.Since(start).Milliseconds(),
		Limitation:    verdict,
		Count:         len(matches),
		Note:          verdict.Message,
	}, nil
}

// SimilarityShowcase runs the showcase query id on the similarity path.
func (e *engine) SimilarityShowcase(ctx context.Context, id string) (*SimilarityResponse, error) {
	q, ok := e.showcase.ByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, id)
	}
	return e.Similarity(ctx, q.Query, q.Category)
}

func (e *engine) Classify(question, category string) limitation.Verdict {
	return limitation.Classify(question, category)
}

func (e *engine) Showcase() *queries.Set { return e.showcase }

// WarmCache runs each showcase query in order and saves the envelopes that
// succeed. Failed queries are reported in the results and joined into the
// returned error.
func (e *engine) WarmCache(ctx context.Context) ([]WarmResult, error) {
	if e.cache == nil {
		return nil, ErrNoCache
	}

	var (
		results []WarmResult
		errs    []error
	)
	for _, q := range e.showcase.All() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := WarmResult{ID: q.ID}
		env, err := e.QueryShowcase(ctx, q.ID, withoutFallback())
		if err == nil {
			err = e.cache.Save(ctx, q.ID, env)
		}
		if err != nil {
			r.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", q.ID, err))
			slog.Warn("clausegraph: warm cache failed", "query_id", q.ID, "error", err)
		} else {
			r.Shape = env.Result.Shape
			r.Rows = len(env.Result.RawResults)
			slog.Info("clausegraph: cached query", "query_id", q.ID, "shape", r.Shape)
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func (e *engine) RecentQueries(ctx context.Context, limit int) ([]store.QueryLog, error) {
	if e.store == nil {
		return []store.QueryLog{}, nil
	}
	return e.store.RecentQueries(ctx, limit)
}

func (e *engine) Metrics() *metrics.Recorder { return e.metrics }

// Close releases collaborators in reverse order of creation.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *engine) logQuery(ctx context.Context, q store.QueryLog) {
	if e.store == nil {
		return
	}
	if err := e.store.LogQuery(ctx, q); err != nil {
		slog.Warn("clausegraph: writing query log failed", "error", err)
	}
}

func logEntry(requestID, question string, env *analysis.Envelope) store.QueryLog {
	res := env.Result
	if res == nil {
		res = &normalize.Result{}
	}
	return store.QueryLog{
		RequestID:   requestID,
		Question:    question,
		QueryID:     metaID(env.QueryMetadata),
		Cypher:      res.Cypher,
		Shape:       string(res.Shape),
		Contracts:   len(res.Contracts),
		Clauses:     len(res.Clauses),
		RawRows:     len(res.RawResults),
		ExecutionMs: res.ExecutionTime,
		Cached:      env.Cached,
	}
}

func metaID(m *analysis.QueryMetadata) string {
	if m == nil {
		return ""
	}
	return m.ID
}

func stageOf(err error) failure.Stage {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
