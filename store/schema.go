package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Contract corpus mirrored from the graph for similarity search
CREATE TABLE IF NOT EXISTS contracts (
    id INTEGER PRIMARY KEY,
    contract_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    num_clauses INTEGER DEFAULT 0,
    context TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_contracts USING vec0(
    contract_rowid INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Full-text search via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS contracts_fts USING fts5(
    title,
    text,
    content='contracts',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS contracts_ai AFTER INSERT ON contracts BEGIN
    INSERT INTO contracts_fts(rowid, title, text) VALUES (new.id, new.title, new.text);
END;
CREATE TRIGGER IF NOT EXISTS contracts_ad AFTER DELETE ON contracts BEGIN
    INSERT INTO contracts_fts(contracts_fts, rowid, title, text) VALUES ('delete', old.id, old.title, old.text);
END;
CREATE TRIGGER IF NOT EXISTS contracts_au AFTER UPDATE ON contracts BEGIN
    INSERT INTO contracts_fts(contracts_fts, rowid, title, text) VALUES ('delete', old.id, old.title, old.text);
    INSERT INTO contracts_fts(rowid, title, text) VALUES (new.id, new.title, new.text);
END;

-- Graph-path request log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    request_id TEXT,
    query_id TEXT,
    cypher TEXT,
    shape TEXT,
    contracts INTEGER DEFAULT 0,
    clauses INTEGER DEFAULT 0,
    raw_rows INTEGER DEFAULT 0,
    execution_ms INTEGER DEFAULT 0,
    cached INTEGER DEFAULT 0,
    error_stage TEXT,
    error_kind TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at);
CREATE INDEX IF NOT EXISTS idx_contracts_title ON contracts(title);
`, embeddingDim)
}
