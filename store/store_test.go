//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"), 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	s, err = New(dbPath, 4)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.DB().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestMigrateAddsRequestID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	legacy, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := legacy.Exec(`CREATE TABLE query_log (
		id INTEGER PRIMARY KEY, question TEXT NOT NULL, query_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	legacy.Close()

	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("opening legacy db: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('query_log') WHERE name = 'request_id'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("request_id column count = %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// Contracts
// ---------------------------------------------------------------------------

func sampleContract(id string) Contract {
	return Contract{
		ID:         id,
		Title:      "Master Services Agreement",
		Text:       "The supplier shall keep accurate books and records.",
		NumClauses: 12,
		Context:    "CUAD",
	}
}

func TestUpsertAndGetContract(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rowID, err := s.UpsertContract(ctx, sampleContract("K1"))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rowID == 0 {
		t.Fatal("expected non-zero row id")
	}

	updated := sampleContract("K1")
	updated.Title = "Amended MSA"
	again, err := s.UpsertContract(ctx, updated)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again != rowID {
		t.Errorf("row id changed on update: %d -> %d", rowID, again)
	}

	got, err := s.GetContract(ctx, "K1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Amended MSA" || got.NumClauses != 12 {
		t.Errorf("unexpected contract %+v", got)
	}

	if _, err := s.GetContract(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertContractRequiresID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertContract(context.Background(), Contract{Title: "x"}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestListAndDeleteContract(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"K1", "K2", "K3"} {
		rowID, err := s.UpsertContract(ctx, sampleContract(id))
		if err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		if err := s.InsertEmbedding(ctx, rowID, []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("embedding %s: %v", id, err)
		}
	}

	list, err := s.ListContracts(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "K1" {
		t.Errorf("unexpected list %+v", list)
	}

	if err := s.DeleteContract(ctx, "K2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteContract(ctx, "K2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Contracts != 2 || stats.Embeddings != 2 {
		t.Errorf("stats = %+v, want 2 contracts and 2 embeddings", stats)
	}
}

// ---------------------------------------------------------------------------
// Embedding / vector search
// ---------------------------------------------------------------------------

func TestInsertEmbeddingAndVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.UpsertContract(ctx, Contract{ID: "A", Title: "Software License"})
	b, _ := s.UpsertContract(ctx, Contract{ID: "B", Title: "Distribution Agreement"})

	// Orthogonal embeddings so distance is clear.
	if err := s.InsertEmbedding(ctx, a, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("embedding a: %v", err)
	}
	if err := s.InsertEmbedding(ctx, b, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("embedding b: %v", err)
	}
	// Replacing an embedding must not fail.
	if err := s.InsertEmbedding(ctx, b, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("re-embedding b: %v", err)
	}

	results, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "A" {
		t.Errorf("expected nearest to be A, got %q", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected first result score (%f) > second (%f)", results[0].Score, results[1].Score)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical vectors should score ~1, got %f", results[0].Score)
	}
}

func TestEmbeddingDimensionChecked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertEmbedding(ctx, 1, []float32{1, 0}); !errors.Is(err, ErrDimension) {
		t.Errorf("insert: expected ErrDimension, got %v", err)
	}
	if _, err := s.VectorSearch(ctx, []float32{1}, 1); !errors.Is(err, ErrDimension) {
		t.Errorf("search: expected ErrDimension, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// FTS search
// ---------------------------------------------------------------------------

func TestFTSSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contracts := []Contract{
		{ID: "K1", Title: "Reseller Agreement", Text: "Reseller shall pay a revenue share of ten percent."},
		{ID: "K2", Title: "Non-Disclosure Agreement", Text: "Confidential information must not be disclosed."},
		{ID: "K3", Title: "Hosting Agreement", Text: "Provider grants audit rights annually."},
	}
	for _, c := range contracts {
		if _, err := s.UpsertContract(ctx, c); err != nil {
			t.Fatalf("upsert %s: %v", c.ID, err)
		}
	}

	results, err := s.FTSSearch(ctx, "audit", 10)
	if err != nil {
		t.Fatalf("fts search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "K3" {
		t.Fatalf("expected K3, got %+v", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive score, got %f", results[0].Score)
	}

	// Updates are reflected through the triggers.
	k3 := contracts[2]
	k3.Text = "Provider grants inspection rights annually."
	if _, err := s.UpsertContract(ctx, k3); err != nil {
		t.Fatalf("update: %v", err)
	}
	results, err = s.FTSSearch(ctx, "audit", 10)
	if err != nil {
		t.Fatalf("fts search after update: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after update, got %d", len(results))
	}
}

// ---------------------------------------------------------------------------
// Query log
// ---------------------------------------------------------------------------

func TestLogQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []QueryLog{
		{RequestID: "r1", Question: "Contracts WITHOUT audit rights", QueryID: "negative-search",
			Cypher: "MATCH (c:Contract) RETURN c", Shape: "entities", Contracts: 240, RawRows: 240, ExecutionMs: 310},
		{RequestID: "r2", Question: "count contracts", ErrorStage: "execution", ErrorKind: "unavailable", Cached: true},
	}
	for _, q := range entries {
		if err := s.LogQuery(ctx, q); err != nil {
			t.Fatalf("log query: %v", err)
		}
	}

	got, err := s.RecentQueries(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].RequestID != "r2" || !got[0].Cached || got[0].ErrorKind != "unavailable" {
		t.Errorf("newest entry = %+v", got[0])
	}
	if got[1].Contracts != 240 || got[1].Shape != "entities" || got[1].CreatedAt == "" {
		t.Errorf("oldest entry = %+v", got[1])
	}
}
