// Package server exposes the analytics read surface over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// StatsReader serves per-day event counts.
type StatsReader interface {
	Counts(ctx context.Context) (model.DayCounts, error)
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Check
}

// Server serves health, readiness, event stats and metrics.
type Server struct {
	stats    StatsReader
	checks   []namedCheck
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCheck adds a readiness check reported by GET /v1/ready.
func WithCheck(name string, check Check) Option {
	return func(s *Server) { s.checks = append(s.checks, namedCheck{name: name, check: check}) }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithTracer sets the tracer used for error spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

func New(stats StatsReader, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		stats:    stats,
		gatherer: prometheus.DefaultGatherer,
		tracer:   otel.Tracer("github.com/alfredjeanlab/planetpulse/internal/server"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe serves the handler on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr, authToken string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.NewHTTPHandler(authToken),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
