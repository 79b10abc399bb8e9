// Package store keeps a local SQLite mirror of the contract corpus for
// similarity search (sqlite-vec + FTS5) and a log of graph-path requests.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrNotFound is returned when a contract does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDimension is returned for embeddings of the wrong length.
	ErrDimension = errors.New("store: embedding dimension mismatch")
)

// Contract is a row in the contracts table.
type Contract struct {
	RowID      int64  `json:"-"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	NumClauses int    `json:"num_clauses"`
	Context    string `json:"context"`
}

// SearchResult is a contract with its retrieval score.
type SearchResult struct {
	Contract
	Score float64 `json:"score"`
}

// QueryLog is a row in the query_log table.
type QueryLog struct {
	ID          int64  `json:"id"`
	RequestID   string `json:"request_id,omitempty"`
	Question    string `json:"question"`
	QueryID     string `json:"query_id,omitempty"`
	Cypher      string `json:"cypher,omitempty"`
	Shape       string `json:"shape,omitempty"`
	Contracts   int    `json:"contracts"`
	Clauses     int    `json:"clauses"`
	RawRows     int    `json:"raw_rows"`
	ExecutionMs int64  `json:"execution_ms"`
	Cached      bool   `json:"cached"`
	ErrorStage  string `json:"error_stage,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// dsn enables WAL and foreign keys and waits up to 30s on a locked file.
const dsn = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000"

// New opens the SQLite file at path, creating parent directories, the
// contract mirror (vec0 + FTS5) and the query log as needed.
func New(path string, embeddingDim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL(s.embeddingDim)); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for ad hoc queries in tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// --- Contract operations ---

// UpsertContract inserts or updates a contract keyed by its id and returns
// the row id.
func (s *Store) UpsertContract(ctx context.Context, c Contract) (int64, error) {
	if c.ID == "" {
		return 0, fmt.Errorf("store: contract id is required")
	}
	var rowID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contracts (contract_id, title, text, num_clauses, context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			num_clauses = excluded.num_clauses,
			context = excluded.context,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, c.ID, c.Title, c.Text, c.NumClauses, c.Context).Scan(&rowID)
	if err != nil {
		return 0, err
	}
	return rowID, nil
}

// GetContract returns a contract by its id.
func (s *Store) GetContract(ctx context.Context, id string) (*Contract, error) {
	var c Contract
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contract_id, title, text, num_clauses, context
		FROM contracts WHERE contract_id = ?
	`, id).Scan(&c.RowID, &c.ID, &c.Title, &c.Text, &c.NumClauses, &c.Context)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContracts returns up to limit contracts in insertion order.
func (s *Store) ListContracts(ctx context.Context, limit int) ([]Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, title, text, num_clauses, context
		FROM contracts ORDER BY id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		var c Contract
		if err := rows.Scan(&c.RowID, &c.ID, &c.Title, &c.Text, &c.NumClauses, &c.Context); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContract removes a contract and its embedding.
func (s *Store) DeleteContract(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowID int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM contracts WHERE contract_id = ?", id).Scan(&rowID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_contracts WHERE contract_rowid = ?", rowID); err != nil {
			return fmt.Errorf("deleting embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", rowID)
		return err
	})
}

// --- Embedding operations ---

// InsertEmbedding stores the embedding for a contract row.
func (s *Store) InsertEmbedding(ctx context.Context, rowID int64, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(embedding), s.embeddingDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// vec0 tables do not support INSERT OR REPLACE on the primary key.
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_contracts WHERE contract_rowid = ?", rowID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vec_contracts (contract_rowid, embedding) VALUES (?, ?)",
			rowID, serializeFloat32(embedding))
		return err
	})
}

// VectorSearch performs a KNN search returning the k nearest contracts.
// Score is cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]SearchResult, error) {
	if len(queryEmbedding) != s.embeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(queryEmbedding), s.embeddingDim)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.contract_rowid, v.distance,
			c.contract_id, c.title, c.text, c.num_clauses, c.context
		FROM vec_contracts v
		JOIN contracts c ON c.id = v.contract_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.RowID, &distance,
			&r.ID, &r.Title, &r.Text, &r.NumClauses, &r.Context); err != nil {
			return nil, err
		}
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// FTSSearch performs a full-text search using FTS5 BM25 ranking.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rowid, f.rank,
			c.contract_id, c.title, c.text, c.num_clauses, c.context
		FROM contracts_fts f
		JOIN contracts c ON c.id = f.rowid
		WHERE contracts_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.RowID, &rank,
			&r.ID, &r.Title, &r.Text, &r.NumClauses, &r.Context); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better)
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Query log ---

// LogQuery writes an entry to the request log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (request_id, question, query_id, cypher, shape, contracts, clauses,
			raw_rows, execution_ms, cached, error_stage, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.RequestID, q.Question, q.QueryID, q.Cypher, q.Shape, q.Contracts, q.Clauses,
		q.RawRows, q.ExecutionMs, q.Cached, q.ErrorStage, q.ErrorKind)
	return err
}

// RecentQueries returns the latest limit log entries, newest first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(request_id, ''), question, COALESCE(query_id, ''), COALESCE(cypher, ''),
			COALESCE(shape, ''), contracts, clauses, raw_rows, execution_ms, cached,
			COALESCE(error_stage, ''), COALESCE(error_kind, ''), created_at
		FROM query_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryLog
	for rows.Next() {
		var q QueryLog
		if err := rows.Scan(&q.ID, &q.RequestID, &q.Question, &q.QueryID, &q.Cypher,
			&q.Shape, &q.Contracts, &q.Clauses, &q.RawRows, &q.ExecutionMs, &q.Cached,
			&q.ErrorStage, &q.ErrorKind, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- Stats ---

// Stats holds row counts for the health endpoint.
type Stats struct {
	Contracts  int `json:"contracts"`
	Embeddings int `json:"embeddings"`
	Queries    int `json:"queries"`
}

// Stats returns counts of contracts, embeddings and logged queries.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM contracts", &stats.Contracts},
		{"SELECT COUNT(*) FROM vec_contracts", &stats.Embeddings},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
