package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/resolve"
	"github.com/brunobiangulo/kgchat/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBot struct {
	g       *graph.Graph
	asked   []string
	askErr  error
	limit   int
	panicky bool
}

func newFakeBot() *fakeBot {
	g := graph.New()
	g.AddEdge(graph.Edge{From: "gandhi", To: "the march", Relation: "led"})
	return &fakeBot{g: g}
}

func (b *fakeBot) Ask(_ context.Context, q string) (*kgchat.Answer, error) {
	if b.panicky {
		panic("boom")
	}
	b.asked = append(b.asked, q)
	if b.askErr != nil {
		return nil, b.askErr
	}
	return &kgchat.Answer{
		Query:    q,
		Text:     "gandhi led the march",
		Outcome:  resolve.OutcomeTriple,
		Node:     "gandhi",
		Score:    1,
		Accepted: true,
	}, nil
}

func (b *fakeBot) Stats(context.Context) (*kgchat.Stats, error) {
	return &kgchat.Stats{Name: "gandhi", Mode: kgchat.ModeRelation, Graph: b.g.Stats()}, nil
}

func (b *fakeBot) RecentQueries(_ context.Context, limit int) ([]store.QueryLog, error) {
	b.limit = limit
	return []store.QueryLog{{ID: "q1", Query: "who is gandhi"}}, nil
}

func (b *fakeBot) Graph() *graph.Graph { return b.g }

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAsk(t *testing.T) {
	bot := newFakeBot()
	h := New(bot, Options{})

	rec := do(t, h, http.MethodPost, "/ask", `{"question": "Who is Gandhi?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	body := decode(t, rec)
	assert.Equal(t, "gandhi led the march", body["text"])
	assert.Equal(t, "triple", body["outcome"])
	assert.Equal(t, "gandhi", body["matched_node"])
	assert.Equal(t, []string{"Who is Gandhi?"}, bot.asked)
}

func TestAskBadRequests(t *testing.T) {
	h := New(newFakeBot(), Options{})

	tests := []struct {
		name, body, want string
	}{
		{"not json", `question?`, "invalid JSON"},
		{"empty", `{"question": "  "}`, "question is required"},
		{"too large", `{"question": "` + strings.Repeat("a", maxQuestionBytes) + `"}`, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["error"])
		})
	}
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{errors.Wrap(kgchat.ErrNoMatchAvailable, "matching"), http.StatusConflict},
		{errors.Mark(errors.New("connection refused"), kgchat.ErrEmbeddingFailed), http.StatusBadGateway},
		{kgchat.ErrClosed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			bot := newFakeBot()
			bot.askErr = tt.err
			rec := do(t, New(bot, Options{}), http.MethodPost, "/ask", `{"question": "gandhi"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGraphAndStats(t *testing.T) {
	h := New(newFakeBot(), Options{})

	rec := do(t, h, http.MethodGet, "/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var g struct {
		Nodes []string     `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, []string{"gandhi", "the march"}, g.Nodes)
	assert.Equal(t, []graph.Edge{{From: "gandhi", To: "the march", Relation: "led"}}, g.Edges)

	rec = do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s kgchat.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "gandhi", s.Name)
	assert.Equal(t, 2, s.Graph.Nodes)
	assert.Equal(t, 1, s.Graph.Relations["led"])
}

func TestGraphNeighbourhood(t *testing.T) {
	bot := newFakeBot()
	bot.g.AddEdge(graph.Edge{From: "the march", To: "dandi", Relation: "reached"})
	bot.g.AddEdge(graph.Edge{From: "nehru", To: "india", Relation: "governed"})
	h := New(bot, Options{})

	type body struct {
		Nodes []string     `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}
	get := func(url string) body {
		rec := do(t, h, http.MethodGet, url, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var b body
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		return b
	}

	b := get("/graph?node=gandhi")
	assert.Equal(t, []string{"gandhi", "the march"}, b.Nodes)
	assert.Equal(t, []graph.Edge{{From: "gandhi", To: "the march", Relation: "led"}}, b.Edges)

	b = get("/graph?node=gandhi&depth=2")
	assert.Equal(t, []string{"gandhi", "the march", "dandi"}, b.Nodes)
	assert.Len(t, b.Edges, 2)

	b = get("/graph?node=dandi&depth=0")
	assert.Equal(t, []string{"dandi"}, b.Nodes)
	assert.Empty(t, b.Edges)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/graph?node=tagore", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/graph?node=gandhi&depth=x", "").Code)
}

func TestEmptyGraph(t *testing.T) {
	bot := newFakeBot()
	bot.g = graph.New()
	rec := do(t, New(bot, Options{}), http.MethodGet, "/graph", "")
	assert.JSONEq(t, `{"nodes": [], "edges": []}`, rec.Body.String())
}

func TestQueries(t *testing.T) {
	bot := newFakeBot()
	h := New(bot, Options{})

	rec := do(t, h, http.MethodGet, "/queries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultQueryLimit, bot.limit)

	do(t, h, http.MethodGet, "/queries?limit=100000", "")
	assert.Equal(t, maxQueryLimit, bot.limit)

	rec = do(t, h, http.MethodGet, "/queries?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	h := New(newFakeBot(), Options{APIKey: "secret"})

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodGet, "/stats", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK,
		do(t, h, http.MethodGet, "/stats", "", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestCORS(t *testing.T) {
	h := New(newFakeBot(), Options{CORSOrigins: "https://example.com"})

	rec := do(t, h, http.MethodOptions, "/ask", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, New(newFakeBot(), Options{}), http.MethodGet, "/health", "")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDKept(t *testing.T) {
	rec := do(t, New(newFakeBot(), Options{}), http.MethodGet, "/health", "", requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestRecovery(t *testing.T) {
	bot := newFakeBot()
	bot.panicky = true
	rec := do(t, New(bot, Options{}), http.MethodPost, "/ask", `{"question": "gandhi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, New(newFakeBot(), Options{}), http.MethodGet, "/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, ln, New(newFakeBot(), Options{})) }()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "ok"}`, string(body))
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
