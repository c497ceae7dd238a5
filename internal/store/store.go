package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Store defines the persistence interface for audit records and the planet catalog.
type Store interface {
	// Audit records
	InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error
	CountEventsByDay(ctx context.Context) (model.DayCounts, error) // ascending by UTC date of consumed_at
	ListAuditRecords(ctx context.Context, afterID int64, limit int) ([]*model.AuditRecord, error)

	// Planets
	CreatePlanet(ctx context.Context, p *model.Planet) error
	GetPlanet(ctx context.Context, id int64) (*model.Planet, error)
	ListPlanets(ctx context.Context) ([]*model.Planet, error)
	UpdatePlanet(ctx context.Context, p *model.Planet) error
	DeletePlanet(ctx context.Context, id int64) error
	UpsertPlanet(ctx context.Context, p *model.Planet) (created bool, err error) // keyed by name

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
