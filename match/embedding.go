package match

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Embedder turns texts into vectors, one per text in order. llm.Provider
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores node label embeddings between queries and across runs.
type Cache interface {
	// Lookup returns the cached vectors of labels; missing labels are
	// absent from the map.
	Lookup(ctx context.Context, labels []string) (map[string][]float32, error)
	Save(ctx context.Context, vecs map[string][]float32) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vecs: make(map[string][]float32)}
}

// Lookup implements Cache.
func (c *MemoryCache) Lookup(_ context.Context, labels []string) (map[string][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]float32)
	for _, l := range labels {
		if v, ok := c.vecs[l]; ok {
			out[l] = v
		}
	}
	return out, nil
}

// Save implements Cache.
func (c *MemoryCache) Save(_ context.Context, vecs map[string][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for l, v := range vecs {
		c.vecs[l] = v
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}

// EmbeddingMatcher scores nodes by cosine similarity between the query
// embedding and each node label embedding.
type EmbeddingMatcher struct {
	emb  Embedder
	opts options
}

// NewEmbeddingMatcher creates an embedding matcher. Without WithMinScore
// every best match is accepted.
func NewEmbeddingMatcher(emb Embedder, opts ...Option) *EmbeddingMatcher {
	o := buildOptions(opts)
	if o.cache == nil {
		o.cache = NewMemoryCache()
	}
	return &EmbeddingMatcher{emb: emb, opts: o}
}

// Match implements Matcher. An empty query scores 0 against every node and
// is never accepted; the provider is not called.
func (m *EmbeddingMatcher) Match(ctx context.Context, query string, nodes []string) (Result, error) {
	if len(nodes) == 0 {
		return Result{}, ErrNoMatchAvailable
	}
	if strings.TrimSpace(query) == "" {
		return Result{Node: nodes[0]}, nil
	}

	vecs, err := m.vectors(ctx, nodes)
	if err != nil {
		return Result{}, err
	}
	qv, err := m.emb.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, errors.Mark(errors.Wrap(err, "embedding query"), ErrEmbeddingFailed)
	}
	if len(qv) != 1 {
		return Result{}, errors.Mark(errors.Newf("expected 1 query embedding, got %d", len(qv)), ErrEmbeddingFailed)
	}

	r := best(nodes, func(i int) float64 { return Cosine(qv[0], vecs[nodes[i]]) })
	r.Accepted = r.Score >= m.opts.minScore
	return r, nil
}

// Warm embeds and caches every node label not already cached, so the first
// query does not pay for it.
func (m *EmbeddingMatcher) Warm(ctx context.Context, nodes []string) error {
	_, err := m.vectors(ctx, nodes)
	return err
}

// vectors returns an embedding for every node, embedding cache misses in
// batches.
func (m *EmbeddingMatcher) vectors(ctx context.Context, nodes []string) (map[string][]float32, error) {
	vecs, err := m.opts.cache.Lookup(ctx, nodes)
	if err != nil {
		slog.Warn("match: embedding cache lookup failed", "error", err)
		vecs = make(map[string][]float32)
	}

	var missing []string
	seen := make(map[string]bool)
	for _, n := range nodes {
		if _, ok := vecs[n]; !ok && !seen[n] {
			seen[n] = true
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return vecs, nil
	}

	start := time.Now()
	fresh := make(map[string][]float32, len(missing))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.concurrency)
	for lo := 0; lo < len(missing); lo += m.opts.batchSize {
		batch := missing[lo:min(lo+m.opts.batchSize, len(missing))]
		g.Go(func() error {
			out, err := m.emb.Embed(gctx, batch)
			if err != nil {
				return err
			}
			if len(out) != len(batch) {
				return errors.Newf("expected %d embeddings, got %d", len(batch), len(out))
			}
			mu.Lock()
			defer mu.Unlock()
			for i, label := range batch {
				fresh[label] = out[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "embedding graph nodes"), ErrEmbeddingFailed)
	}

	if err := m.opts.cache.Save(ctx, fresh); err != nil {
		slog.Warn("match: saving embeddings to cache failed", "error", err)
	}
	for l, v := range fresh {
		vecs[l] = v
	}
	slog.Debug("match: embedded nodes",
		"count", len(fresh),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return vecs, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// all zeros, or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
