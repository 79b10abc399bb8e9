package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/brunobiangulo/clausegraph/llm"
)

// Postgres searches a pgvector-backed contracts table through the
// match_contracts function. When the function is missing or fails, it
// falls back to an unranked select.
type Postgres struct {
	db       *sql.DB
	embedder llm.Embedder
}

// NewPostgres opens dsn with the pgx driver and pings it.
func NewPostgres(dsn string, embedder llm.Embedder) (*Postgres, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewPostgresDB(db, embedder), nil
}

// NewPostgresDB wraps an open database.
func NewPostgresDB(db *sql.DB, embedder llm.Embedder) *Postgres {
	return &Postgres{db: db, embedder: embedder}
}

// Close closes the database.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Search implements Searcher.
func (p *Postgres) Search(ctx context.Context, question string, opts Options) ([]Match, error) {
	opts = opts.withDefaults()

	embs, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(embs) == 0 || len(embs[0]) == 0 {
		return nil, fmt.Errorf("embedding question: empty embedding")
	}

	matches, err := p.matchContracts(ctx, embs[0], opts)
	if err == nil {
		return withSnippets(matches, question), nil
	}
	slog.Warn("retrieval: match_contracts failed, using plain select", "error", err)

	matches, err = p.selectContracts(ctx, opts.Count)
	if err != nil {
		return nil, fmt.Errorf("fallback select: %w", err)
	}
	return withSnippets(matches, question), nil
}

func (p *Postgres) matchContracts(ctx context.Context, embedding []float32, opts Options) ([]Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, COALESCE(text, ''), COALESCE(num_clauses, 0), COALESCE(context, ''), similarity
		FROM match_contracts($1::vector, $2, $3)
	`, vectorLiteral(embedding), opts.Threshold, opts.Count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Title, &m.Text, &m.NumClauses, &m.Context, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *Postgres) selectContracts(ctx context.Context, limit int) ([]Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, COALESCE(text, ''), COALESCE(num_clauses, 0), COALESCE(context, '')
		FROM contracts LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Title, &m.Text, &m.NumClauses, &m.Context); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
