package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/clausegraph"
)

// newServer routes every endpoint behind recovery, CORS, API key and
// request logging, outermost first.
func newServer(e clausegraph.Engine, cfg clausegraph.ServerConfig) http.Handler {
	h := newHandler(e, time.Duration(cfg.RequestTimeout)*time.Second)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("POST /cypher", h.handleCypher)
	mux.HandleFunc("POST /rag", h.handleRAG)
	mux.HandleFunc("POST /classify", h.handleClassify)
	mux.HandleFunc("POST /export", h.handleExport)
	mux.HandleFunc("GET /queries", h.handleQueries)
	mux.HandleFunc("GET /queries/recent", h.handleRecent)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", e.Metrics().Handler())

	return chain(mux,
		recoverPanics,
		allowOrigins(cfg.CORSOrigins),
		requireKey(cfg.APIKey),
		logRequests,
	)
}

// serve runs the HTTP server until SIGINT or SIGTERM.
func serve(e clausegraph.Engine, cfg clausegraph.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      newServer(e, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeout+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		slog.Info("http: listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-done:
	}
	slog.Info("http: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http: shutdown", "error", err)
	}
	slog.Info("http: stopped")
	return nil
}
