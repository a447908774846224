// Package store persists knowledge graphs, node embeddings and the query
// log in SQLite, with vectors held in a sqlite-vec vec0 table.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/kgchat/graph"
)

func init() {
	sqlite_vec.Auto()
}

// ErrGraphNotFound is returned when no graph is saved under a name.
var ErrGraphNotFound = errors.New("graph not found")

// GraphInfo describes a saved graph.
type GraphInfo struct {
	Name      string `json:"name"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// QueryLog is one answered question.
type QueryLog struct {
	ID        string  `json:"id"`
	Graph     string  `json:"graph"`
	Query     string  `json:"query"`
	Processed string  `json:"processed"`
	Node      string  `json:"matched_node"`
	Score     float64 `json:"score"`
	Accepted  bool    `json:"accepted"`
	Outcome   string  `json:"outcome"`
	Answer    string  `json:"answer"`
	Strategy  string  `json:"strategy"`
	ElapsedMS int64   `json:"elapsed_ms"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// Store wraps the SQLite database for all kgchat persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if embeddingDim <= 0 {
		return nil, errors.Newf("embedding dimension must be positive, got %d", embeddingDim)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating db directory")
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Graph operations ---

// SaveGraph stores g under name, replacing any graph saved under it before.
func (s *Store) SaveGraph(ctx context.Context, name string, g *graph.Graph) error {
	nodes := g.Nodes()
	edges := g.Edges()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graphs (name) VALUES (?)
			ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
		`, name); err != nil {
			return errors.Wrap(err, "upserting graph")
		}

		var id int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM graphs WHERE name = ?", name).Scan(&id); err != nil {
			return err
		}

		for _, table := range []string{"nodes", "edges"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE graph_id = ?", id); err != nil {
				return errors.Wrapf(err, "clearing %s", table)
			}
		}

		nodeStmt, err := tx.PrepareContext(ctx, "INSERT INTO nodes (graph_id, position, label) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer nodeStmt.Close()
		for i, n := range nodes {
			if _, err := nodeStmt.ExecContext(ctx, id, i, n); err != nil {
				return errors.Wrapf(err, "inserting node %q", n)
			}
		}

		edgeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (graph_id, position, source, target, relation, sentence_id, sentence)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()
		for i, e := range edges {
			if _, err := edgeStmt.ExecContext(ctx, id, i, e.From, e.To, e.Relation, e.SentenceID, e.Sentence); err != nil {
				return errors.Wrapf(err, "inserting edge %s -> %s", e.From, e.To)
			}
		}
		return nil
	})
}

// LoadGraph reads the graph saved under name. Node and edge order is the
// order they had when saved.
func (s *Store) LoadGraph(ctx context.Context, name string) (*graph.Graph, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM graphs WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrGraphNotFound, "loading %q", name)
	}
	if err != nil {
		return nil, err
	}

	g := graph.New()

	rows, err := s.db.QueryContext(ctx, "SELECT label FROM nodes WHERE graph_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			rows.Close()
			return nil, err
		}
		g.AddNode(label)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT source, target, relation, COALESCE(sentence_id, 0), COALESCE(sentence, '')
		FROM edges WHERE graph_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.From, &e.To, &e.Relation, &e.SentenceID, &e.Sentence); err != nil {
			return nil, err
		}
		g.AddEdge(e)
	}
	return g, rows.Err()
}

// ListGraphs returns the saved graphs ordered by name.
func (s *Store) ListGraphs(ctx context.Context) ([]GraphInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.name,
			(SELECT COUNT(*) FROM nodes n WHERE n.graph_id = g.id),
			(SELECT COUNT(*) FROM edges e WHERE e.graph_id = g.id),
			g.created_at, g.updated_at
		FROM graphs g ORDER BY g.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GraphInfo
	for rows.Next() {
		var gi GraphInfo
		if err := rows.Scan(&gi.Name, &gi.Nodes, &gi.Edges, &gi.CreatedAt, &gi.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, gi)
	}
	return out, rows.Err()
}

// DeleteGraph removes the graph saved under name.
func (s *Store) DeleteGraph(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM graphs WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrGraphNotFound, "deleting %q", name)
	}
	return nil
}

// --- Query log ---

// LogQuery writes an entry to the query log, assigning an ID when q has none.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (id, graph, query, processed, matched_node, score, accepted, outcome, answer, strategy, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.Graph, q.Query, q.Processed, q.Node, q.Score, q.Accepted, q.Outcome, q.Answer, q.Strategy, q.ElapsedMS)
	return err
}

// RecentQueries returns up to limit log entries for the named graph, newest
// first.
func (s *Store) RecentQueries(ctx context.Context, graphName string, limit int) ([]QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph, query, COALESCE(processed, ''), COALESCE(matched_node, ''),
			COALESCE(score, 0), COALESCE(accepted, 0), COALESCE(outcome, ''), COALESCE(answer, ''),
			COALESCE(strategy, ''), COALESCE(elapsed_ms, 0), created_at
		FROM query_log WHERE graph = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, graphName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryLog
	for rows.Next() {
		var q QueryLog
		if err := rows.Scan(&q.ID, &q.Graph, &q.Query, &q.Processed, &q.Node, &q.Score, &q.Accepted,
			&q.Outcome, &q.Answer, &q.Strategy, &q.ElapsedMS, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Graphs     int `json:"graphs"`
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Embeddings int `json:"embeddings"`
	Queries    int `json:"queries"`
}

// DBStats returns row counts across the store.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM graphs", &stats.Graphs},
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM vec_node_embeddings", &stats.Embeddings},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, errors.Wrapf(err, "counting %s", q.query)
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

// deserializeFloat32 is the inverse of serializeFloat32.
func deserializeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
