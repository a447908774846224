package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/graph"
)

const (
	defaultQueryLimit = 20
	maxQueryLimit     = 500
	maxQuestionBytes  = 8 << 10
	defaultGraphDepth = 1
	maxGraphDepth     = 5
)

type handler struct {
	bot        Bot
	askTimeout time.Duration
}

func newHandler(b Bot, askTimeout time.Duration) *handler {
	if askTimeout <= 0 {
		askTimeout = 2 * time.Minute
	}
	return &handler{bot: b, askTimeout: askTimeout}
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.askTimeout)
	defer cancel()

	var req struct {
		Question string `json:"question"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxQuestionBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.bot.Ask(ctx, req.Question)
	if err != nil {
		status, msg := askError(err)
		writeError(w, status, msg)
		loggerFrom(r.Context()).Error("ask error", "question", req.Question, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func askError(err error) (int, string) {
	switch {
	case errors.Is(err, kgchat.ErrNoMatchAvailable):
		return http.StatusConflict, "knowledge graph is empty"
	case errors.Is(err, kgchat.ErrEmbeddingFailed):
		return http.StatusBadGateway, "embedding provider failed"
	case errors.Is(err, kgchat.ErrClosed):
		return http.StatusServiceUnavailable, "bot is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "question timed out"
	default:
		return http.StatusInternalServerError, "ask failed"
	}
}

// GET /graph[?node=LABEL&depth=N]
func (h *handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	g := h.bot.Graph()
	nodes := g.Nodes()
	edges := g.Edges()

	if node := r.URL.Query().Get("node"); node != "" {
		depth := defaultGraphDepth
		if s := r.URL.Query().Get("depth"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
				return
			}
			depth = min(n, maxGraphDepth)
		}
		nodes = g.Neighbourhood(node, depth)
		if nodes == nil {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		keep := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			keep[n] = true
		}
		var within []graph.Edge
		for _, e := range edges {
			if keep[e.From] && keep[e.To] {
				within = append(within, e)
			}
		}
		edges = within
	}

	if edges == nil {
		edges = []graph.Edge{}
	}
	if nodes == nil {
		nodes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.bot.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		loggerFrom(r.Context()).Error("stats error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /queries?limit=N
func (h *handler) handleQueries(w http.ResponseWriter, r *http.Request) {
	limit := defaultQueryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxQueryLimit)
	}

	logs, err := h.bot.RecentQueries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		loggerFrom(r.Context()).Error("list queries error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": logs})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
