// Package catalog manages planet records: cached reads, writes that
// invalidate the cache, and a change event for every write.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/cache"
	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/store"
)

// Cache keys for planet reads.
const (
	PlanetKeyPrefix = "planet:"
	AllPlanetsKey   = "planets:all"
)

// DefaultTTL is how long planet reads stay cached.
const DefaultTTL = 300 * time.Second

// ErrInvalid wraps validation failures on planet writes.
var ErrInvalid = errors.New("invalid planet")

// Emitter publishes a change event.
type Emitter interface {
	Emit(ctx context.Context, eventType string, data any) error
}

// Service is the planet catalog.
type Service struct {
	store   store.Store
	cache   cache.Cache
	emitter Emitter
	ttl     time.Duration
	logger  *slog.Logger
}

// New returns a catalog service. emitter may be nil to disable change events.
func New(st store.Store, c cache.Cache, emitter Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, cache: c, emitter: emitter, ttl: DefaultTTL, logger: logger}
}

// PlanetKey returns the cache key of one planet.
func PlanetKey(id int64) string {
	return PlanetKeyPrefix + strconv.FormatInt(id, 10)
}

// payload is the change-event body for a planet.
type payload struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Population *int64   `json:"population"`
	Climates   []string `json:"climates"`
	Terrains   []string `json:"terrains"`
}

func payloadOf(p *model.Planet) payload {
	return payload{ID: p.ID, Name: p.Name, Population: p.Population, Climates: p.Climates, Terrains: p.Terrains}
}

// List returns every planet ordered by id.
func (s *Service) List(ctx context.Context) ([]*model.Planet, error) {
	var planets []*model.Planet
	if s.cached(ctx, AllPlanetsKey, &planets) {
		return planets, nil
	}

	planets, err := s.store.ListPlanets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing planets: %w", err)
	}
	s.fill(ctx, AllPlanetsKey, planets)
	return planets, nil
}

// Get returns one planet or an error wrapping store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*model.Planet, error) {
	var p model.Planet
	if s.cached(ctx, PlanetKey(id), &p) {
		return &p, nil
	}

	got, err := s.store.GetPlanet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("planet not found", "planet_id", id)
		}
		return nil, err
	}
	s.fill(ctx, PlanetKey(id), got)
	return got, nil
}

func (s *Service) Create(ctx context.Context, p *model.Planet) (*model.Planet, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := s.store.CreatePlanet(ctx, p); err != nil {
		return nil, fmt.Errorf("creating planet: %w", err)
	}
	s.invalidate(ctx, AllPlanetsKey)
	s.emit(ctx, model.EventPlanetCreated, payloadOf(p))
	s.logger.Info("planet created", "planet_id", p.ID, "name", p.Name)
	return p, nil
}

// Update applies u to planet id inside one transaction.
func (s *Service) Update(ctx context.Context, id int64, u model.PlanetUpdate) (*model.Planet, error) {
	var updated *model.Planet
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		p, err := tx.GetPlanet(ctx, id)
		if err != nil {
			return err
		}
		u.Apply(p)
		p.Normalize()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if err := tx.UpdatePlanet(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating planet %d: %w", id, err)
	}

	s.invalidate(ctx, PlanetKey(id), AllPlanetsKey)
	s.emit(ctx, model.EventPlanetUpdated, payloadOf(updated))
	s.logger.Info("planet updated", "planet_id", id)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeletePlanet(ctx, id); err != nil {
		return fmt.Errorf("deleting planet %d: %w", id, err)
	}
	s.invalidate(ctx, PlanetKey(id), AllPlanetsKey)
	s.emit(ctx, model.EventPlanetDeleted, map[string]int64{"id": id})
	s.logger.Info("planet deleted", "planet_id", id)
	return nil
}

// Upsert creates or overwrites the planet with p.Name and emits created or
// updated accordingly.
func (s *Service) Upsert(ctx context.Context, p *model.Planet) (bool, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	created, err := s.store.UpsertPlanet(ctx, p)
	if err != nil {
		return false, fmt.Errorf("upserting planet %q: %w", p.Name, err)
	}
	s.invalidate(ctx, PlanetKey(p.ID), AllPlanetsKey)

	eventType := model.EventPlanetUpdated
	if created {
		eventType = model.EventPlanetCreated
	}
	s.emit(ctx, eventType, payloadOf(p))
	return created, nil
}

// cached decodes key into dst and reports whether it was a usable hit.
func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("planet cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("discarding unreadable planet cache entry", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Service) fill(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encoding planet cache entry", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.logger.Warn("planet cache write failed", "key", key, "err", err)
	}
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("planet cache invalidation failed", "keys", keys, "err", err)
	}
}

// emit publishes a change event. Failures are logged by the emitter and do
// not undo the write.
func (s *Service) emit(ctx context.Context, eventType string, data any) {
	if s.emitter == nil {
		return
	}
	_ = s.emitter.Emit(ctx, eventType, data)
}
