package planets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/breaker"
	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// Source lists planets from the external API.
type Source interface {
	AllPlanets(ctx context.Context) ([]RemotePlanet, error)
}

// Upserter writes a planet keyed by name and reports whether it was new.
type Upserter interface {
	Upsert(ctx context.Context, p *model.Planet) (created bool, err error)
}

// TaskConfig controls FetchTask retries.
type TaskConfig struct {
	MaxRetries int           // extra attempts after the first (default 2)
	RetryDelay time.Duration // wait between attempts (default 30s)
}

// FetchTask pulls every planet through a circuit breaker and upserts them.
type FetchTask struct {
	source     Source
	breaker    *breaker.Breaker
	upserter   Upserter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewFetchTask(src Source, br *breaker.Breaker, up Upserter, cfg TaskConfig, logger *slog.Logger) *FetchTask {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchTask{
		source:     src,
		breaker:    br,
		upserter:   up,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// NewBreaker builds the breaker guarding the planet API, logging transitions
// and exporting the state gauge.
func NewBreaker(threshold int, reset time.Duration, logger *slog.Logger) *breaker.Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return breaker.New(breaker.Settings{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		OnStateChange: func(from, to breaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Warn("planet API circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	})
}

// Run fetches and stores planets. An open breaker skips the run without
// error. Other failures are retried after a fixed delay; once retries are
// exhausted the last error is returned.
func (t *FetchTask) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries+1; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(t.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		created, updated, err := t.runOnce(ctx)
		if err == nil {
			metrics.FetchRunsTotal.WithLabelValues("ok").Inc()
			t.logger.Info("planet fetch completed", "created", created, "updated", updated)
			return nil
		}
		if errors.Is(err, breaker.ErrOpen) {
			metrics.FetchRunsTotal.WithLabelValues("skipped").Inc()
			t.logger.Error("circuit breaker is open; skipping fetch", "err", err)
			return nil
		}

		lastErr = err
		t.logger.Error("planet fetch failed", "attempt", attempt, "max_attempts", t.maxRetries+1, "err", err)
	}

	metrics.FetchRunsTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("fetching planets after %d attempts: %w", t.maxRetries+1, lastErr)
}

func (t *FetchTask) runOnce(ctx context.Context) (created, updated int, err error) {
	var remote []RemotePlanet
	err = t.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		remote, callErr = t.source.AllPlanets(ctx)
		return callErr
	})
	if err != nil {
		return 0, 0, err
	}

	for _, rp := range remote {
		p := rp.Planet()
		isNew, err := t.upserter.Upsert(ctx, p)
		if err != nil {
			return created, updated, fmt.Errorf("upserting planet %q: %w", p.Name, err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}
