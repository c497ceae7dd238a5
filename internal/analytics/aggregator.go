// Package analytics keeps the per-day event counts served to readers.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/cache"
	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// StatsKey is the cache key holding the JSON-encoded model.DayCounts.
const StatsKey = "analytics:events_stats"

// DefaultTTL is how long a store-computed snapshot stays cached.
const DefaultTTL = 5 * time.Minute

// Counter computes day counts from the durable store.
type Counter interface {
	CountEventsByDay(ctx context.Context) (model.DayCounts, error)
}

// Aggregator serves day counts cache-first and maintains them as events arrive.
type Aggregator struct {
	cache  cache.Cache
	store  Counter
	ttl    time.Duration
	logger *slog.Logger
}

func New(c cache.Cache, s Counter, ttl time.Duration, logger *slog.Logger) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cache: c, store: s, ttl: ttl, logger: logger}
}

// Counts returns the cached day counts, or computes them from the store and
// caches the result for the configured TTL.
func (a *Aggregator) Counts(ctx context.Context) (model.DayCounts, error) {
	raw, err := a.cache.Get(ctx, StatsKey)
	switch {
	case err == nil:
		var counts model.DayCounts
		jerr := json.Unmarshal(raw, &counts)
		if jerr == nil {
			metrics.StatsCacheHitsTotal.Inc()
			if counts == nil {
				counts = model.DayCounts{}
			}
			return counts, nil
		}
		a.logger.Warn("discarding unreadable stats cache entry", "key", StatsKey, "err", jerr)
	case !errors.Is(err, cache.ErrMiss):
		a.logger.Warn("stats cache read failed", "key", StatsKey, "err", err)
	}

	metrics.StatsCacheMissesTotal.Inc()
	counts, err := a.store.CountEventsByDay(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting events by day: %w", err)
	}
	if counts == nil {
		counts = model.DayCounts{}
	}

	b, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("encoding day counts: %w", err)
	}
	if err := a.cache.Set(ctx, StatsKey, b, a.ttl); err != nil {
		a.logger.Warn("stats cache write failed", "key", StatsKey, "err", err)
	}
	return counts, nil
}

// Increment adds one to day in the cached counts as a single atomic update.
// The entry is written without expiration, so an incremented snapshot stays
// until Invalidate or an external delete.
func (a *Aggregator) Increment(ctx context.Context, day string) error {
	err := a.cache.Update(ctx, StatsKey, 0, func(cur []byte) ([]byte, error) {
		var counts model.DayCounts
		if len(cur) > 0 {
			if err := json.Unmarshal(cur, &counts); err != nil {
				a.logger.Warn("resetting unreadable stats cache entry", "key", StatsKey, "err", err)
				counts = nil
			}
		}
		return json.Marshal(counts.Add(day, 1))
	})
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", day, err)
	}
	return nil
}

// Invalidate drops the cached counts so the next read recomputes them.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	return a.cache.Delete(ctx, StatsKey)
}
