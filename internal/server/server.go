// Package server exposes a Bot over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/graph"
	"github.com/brunobiangulo/kgchat/store"
)

// Bot is the part of *kgchat.Bot the server needs.
type Bot interface {
	Ask(ctx context.Context, question string) (*kgchat.Answer, error)
	Stats(ctx context.Context) (*kgchat.Stats, error)
	RecentQueries(ctx context.Context, limit int) ([]store.QueryLog, error)
	Graph() *graph.Graph
}

// Options configures the middleware chain.
type Options struct {
	// APIKey enables bearer authentication on everything but /health.
	APIKey string
	// CORSOrigins is sent as Access-Control-Allow-Origin when set.
	CORSOrigins string
	// AskTimeout bounds one question. Zero means 2 minutes.
	AskTimeout time.Duration
}

// New returns the routed handler wrapped in recovery, CORS, auth, request
// ID and logging middleware.
func New(bot Bot, opts Options) http.Handler {
	h := newHandler(bot, opts.AskTimeout)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("GET /graph", h.handleGraph)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /queries", h.handleQueries)
	mux.HandleFunc("GET /health", h.handleHealth)

	// recovery -> cors -> auth -> request id -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = authMiddleware(opts.APIKey, handler)
	handler = corsMiddleware(opts.CORSOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}

// Run serves handler on ln until ctx is cancelled, then shuts down
// gracefully, waiting at most 30 seconds for in-flight requests.
func Run(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// ListenAndRun listens on addr and calls Run.
func ListenAndRun(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return Run(ctx, ln, handler)
}
