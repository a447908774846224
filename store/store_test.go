//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/kgchat/extract"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/match"
)

var _ match.Cache = (*EmbeddingCache)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	s := newTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath, 4)
	require.NoError(t, err)
	s.Close()
}

func TestNewRejectsZeroDim(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "x.db"), 0)
	require.Error(t, err)
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	require.NoError(t, err)
	s.Close()

	s, err = New(dbPath, 4)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func sampleGraph() *graph.Graph {
	g := graph.Build([]extract.Triple{
		{SentenceID: 0, Sentence: "gandhi led the salt march.", Subject: "gandhi", Relation: "led", Object: "salt march"},
		{SentenceID: 1, Sentence: "gandhi organised the salt march.", Subject: "gandhi", Relation: "organised", Object: "salt march"},
		{SentenceID: 2, Sentence: "he inspired millions.", Subject: "gandhi", Relation: "inspired", Object: "millions"},
		{SentenceID: 3, Sentence: "bapu wrote letters.", Subject: "bapu", Relation: "wrote", Object: "letters"},
	})
	g.AddSynonyms(map[string][]string{"gandhi": {"bapu"}})
	g.AddNode("isolated")
	return g
}

func TestSaveLoadGraphRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := sampleGraph()

	require.NoError(t, s.SaveGraph(ctx, "gandhi", g))

	loaded, err := s.LoadGraph(ctx, "gandhi")
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Len(t, loaded.EdgesBetween("gandhi", "salt march"), 2)
	assert.Equal(t, g.OutEdges("gandhi"), loaded.OutEdges("gandhi"))
}

func TestSaveGraphReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveGraph(ctx, "g", sampleGraph()))
	small := graph.BuildQA([]graph.QA{{Question: "What is the capital of France?", Answer: "Paris"}})
	require.NoError(t, s.SaveGraph(ctx, "g", small))

	loaded, err := s.LoadGraph(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"What is the capital of France?", "Paris"}, loaded.Nodes())
	assert.Equal(t, graph.RelationHasAnswer, loaded.OutEdges("What is the capital of France?")[0].Relation)

	infos, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, GraphInfo{Name: "g", Nodes: 2, Edges: 1, CreatedAt: infos[0].CreatedAt, UpdatedAt: infos[0].UpdatedAt}, infos[0])
}

func TestSaveEmptyGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveGraph(ctx, "empty", graph.New()))

	loaded, err := s.LoadGraph(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, loaded.NodeCount())
}

func TestLoadGraphNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadGraph(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGraphNotFound))
}

func TestDeleteGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveGraph(ctx, "g", sampleGraph()))

	require.NoError(t, s.DeleteGraph(ctx, "g"))
	_, err := s.LoadGraph(ctx, "g")
	assert.True(t, errors.Is(err, ErrGraphNotFound))

	stats, err := s.DBStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes, "nodes cascade with their graph")
	assert.Zero(t, stats.Edges)

	assert.True(t, errors.Is(s.DeleteGraph(ctx, "g"), ErrGraphNotFound))
}

func TestEmbeddingCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := s.EmbeddingCache("nomic-embed-text")

	got, err := c.Lookup(ctx, []string{"gandhi"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Save(ctx, map[string][]float32{
		"gandhi":     {1, 0, 0, 0},
		"salt march": {0, 1, 0, 0.5},
		"bad":        {1, 2}, // wrong dimension, skipped
	}))

	got, err = c.Lookup(ctx, []string{"gandhi", "salt march", "bad", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{
		"gandhi":     {1, 0, 0, 0},
		"salt march": {0, 1, 0, 0.5},
	}, got)

	// Overwrite replaces the vector.
	require.NoError(t, c.Save(ctx, map[string][]float32{"gandhi": {0, 0, 1, 0}}))
	got, err = c.Lookup(ctx, []string{"gandhi"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1, 0}, got["gandhi"])

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Models do not share vectors.
	other, err := s.EmbeddingCache("other-model").Lookup(ctx, []string{"gandhi"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEmbeddingCacheWithMatcher(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := &countingEmbedder{}

	nodes := []string{"gandhi", "salt march"}
	m := match.NewEmbeddingMatcher(emb, match.WithCache(s.EmbeddingCache("m")))
	require.NoError(t, m.Warm(ctx, nodes))
	assert.Equal(t, 1, emb.calls)

	// A fresh matcher on the same store finds the vectors persisted.
	m = match.NewEmbeddingMatcher(emb, match.WithCache(s.EmbeddingCache("m")))
	require.NoError(t, m.Warm(ctx, nodes))
	assert.Equal(t, 1, emb.calls)
}

type countingEmbedder struct{ calls int }

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 0, 0, 0}
	}
	return out, nil
}

func TestQueryLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogQuery(ctx, QueryLog{
		Graph: "qa", Query: "What is the capital of France?", Processed: "capital france",
		Node: "What is the capital of France?", Score: 1, Accepted: true,
		Outcome: "answer", Answer: "Paris", Strategy: "lexical", ElapsedMS: 3,
	}))
	require.NoError(t, s.LogQuery(ctx, QueryLog{ID: "fixed", Graph: "qa", Query: "hello"}))
	require.NoError(t, s.LogQuery(ctx, QueryLog{Graph: "gandhi", Query: "who is gandhi"}))

	logs, err := s.RecentQueries(ctx, "qa", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "fixed", logs[0].ID)
	assert.NotEmpty(t, logs[1].ID)
	assert.Equal(t, "Paris", logs[1].Answer)
	assert.True(t, logs[1].Accepted)
	assert.Equal(t, 1.0, logs[1].Score)

	logs, err = s.RecentQueries(ctx, "gandhi", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1, "other graphs' questions are not listed")
	assert.Equal(t, "who is gandhi", logs[0].Query)

	logs, err = s.RecentQueries(ctx, "qa", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "fixed", logs[0].ID)

	stats, err := s.DBStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Queries)
}

func TestSerializeFloat32RoundTrip(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	assert.Equal(t, v, deserializeFloat32(serializeFloat32(v)))
}
