package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Saved knowledge graphs
CREATE TABLE IF NOT EXISTS graphs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Nodes keep their insertion position so iteration order survives a reload
CREATE TABLE IF NOT EXISTS nodes (
    graph_id INTEGER NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    label TEXT NOT NULL,
    PRIMARY KEY (graph_id, position),
    UNIQUE (graph_id, label)
);

-- Edges, one row per parallel edge, with sentence provenance
CREATE TABLE IF NOT EXISTS edges (
    graph_id INTEGER NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    relation TEXT NOT NULL,
    sentence_id INTEGER,
    sentence TEXT,
    PRIMARY KEY (graph_id, position)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(graph_id, source);

-- Node label embeddings, keyed per embedding model
CREATE TABLE IF NOT EXISTS node_embeddings (
    id INTEGER PRIMARY KEY,
    model TEXT NOT NULL,
    label TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (model, label)
);

-- Vectors via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_node_embeddings USING vec0(
    embedding_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Answered questions
CREATE TABLE IF NOT EXISTS query_log (
    id TEXT PRIMARY KEY,
    graph TEXT NOT NULL,
    query TEXT NOT NULL,
    processed TEXT,
    matched_node TEXT,
    score REAL,
    accepted INTEGER,
    outcome TEXT,
    answer TEXT,
    strategy TEXT,
    elapsed_ms INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`, embeddingDim)
}
