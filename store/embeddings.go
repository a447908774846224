package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// EmbeddingCache keeps node label embeddings of one model in the store. It
// satisfies match.Cache, so vectors survive restarts and a graph is embedded
// once per model.
type EmbeddingCache struct {
	s     *Store
	model string
}

// EmbeddingCache returns the cache for model.
func (s *Store) EmbeddingCache(model string) *EmbeddingCache {
	return &EmbeddingCache{s: s, model: model}
}

// lookupBatch stays well below SQLite's bound-parameter limit.
const lookupBatch = 500

// Lookup returns the cached vectors for labels. Labels without a vector are
// absent from the result.
func (c *EmbeddingCache) Lookup(ctx context.Context, labels []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(labels))
	for lo := 0; lo < len(labels); lo += lookupBatch {
		batch := labels[lo:min(lo+lookupBatch, len(labels))]

		args := make([]any, 0, len(batch)+1)
		args = append(args, c.model)
		for _, l := range batch {
			args = append(args, l)
		}

		rows, err := c.s.db.QueryContext(ctx, `
			SELECT ne.label, v.embedding
			FROM node_embeddings ne
			JOIN vec_node_embeddings v ON v.embedding_id = ne.id
			WHERE ne.model = ? AND ne.label IN (?`+strings.Repeat(", ?", len(batch)-1)+`)
		`, args...)
		if err != nil {
			return nil, errors.Wrap(err, "looking up embeddings")
		}
		for rows.Next() {
			var (
				label string
				blob  []byte
			)
			if err := rows.Scan(&label, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			out[label] = deserializeFloat32(blob)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Save stores vecs, replacing earlier vectors for the same labels. Vectors
// whose dimension does not match the store are skipped.
func (c *EmbeddingCache) Save(ctx context.Context, vecs map[string][]float32) error {
	return c.s.inTx(ctx, func(tx *sql.Tx) error {
		for label, v := range vecs {
			if len(v) != c.s.embeddingDim {
				slog.Warn("store: skipping embedding with wrong dimension",
					"label", label, "got", len(v), "want", c.s.embeddingDim)
				continue
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO node_embeddings (model, label) VALUES (?, ?)",
				c.model, label); err != nil {
				return errors.Wrap(err, "inserting embedding row")
			}
			var id int64
			if err := tx.QueryRowContext(ctx,
				"SELECT id FROM node_embeddings WHERE model = ? AND label = ?",
				c.model, label).Scan(&id); err != nil {
				return err
			}

			// vec0 has no upsert.
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM vec_node_embeddings WHERE embedding_id = ?", id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_node_embeddings (embedding_id, embedding) VALUES (?, ?)",
				id, serializeFloat32(v)); err != nil {
				return errors.Wrap(err, "inserting vector")
			}
		}
		return nil
	})
}

// Count returns the number of vectors cached for the model.
func (c *EmbeddingCache) Count(ctx context.Context) (int, error) {
	var n int
	err := c.s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM node_embeddings ne
		JOIN vec_node_embeddings v ON v.embedding_id = ne.id
		WHERE ne.model = ?
	`, c.model).Scan(&n)
	return n, err
}
