// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	return queryInsertAuditRecord(ctx, s.db, rec)
}

func (s *PostgresStore) CountEventsByDay(ctx context.Context) (model.DayCounts, error) {
	return queryCountEventsByDay(ctx, s.db)
}

func (s *PostgresStore) ListAuditRecords(ctx context.Context, afterID int64, limit int) ([]*model.AuditRecord, error) {
	return queryListAuditRecords(ctx, s.db, afterID, limit)
}

func (s *PostgresStore) CreatePlanet(ctx context.Context, p *model.Planet) error {
	return queryCreatePlanet(ctx, s.db, p)
}

func (s *PostgresStore) GetPlanet(ctx context.Context, id int64) (*model.Planet, error) {
	return queryGetPlanet(ctx, s.db, id)
}

func (s *PostgresStore) ListPlanets(ctx context.Context) ([]*model.Planet, error) {
	return queryListPlanets(ctx, s.db)
}

func (s *PostgresStore) UpdatePlanet(ctx context.Context, p *model.Planet) error {
	return queryUpdatePlanet(ctx, s.db, p)
}

func (s *PostgresStore) DeletePlanet(ctx context.Context, id int64) error {
	return queryDeletePlanet(ctx, s.db, id)
}

func (s *PostgresStore) UpsertPlanet(ctx context.Context, p *model.Planet) (bool, error) {
	return queryUpsertPlanet(ctx, s.db, p)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	return queryInsertAuditRecord(ctx, s.tx, rec)
}

func (s *txStore) CountEventsByDay(ctx context.Context) (model.DayCounts, error) {
	return queryCountEventsByDay(ctx, s.tx)
}

func (s *txStore) ListAuditRecords(ctx context.Context, afterID int64, limit int) ([]*model.AuditRecord, error) {
	return queryListAuditRecords(ctx, s.tx, afterID, limit)
}

func (s *txStore) CreatePlanet(ctx context.Context, p *model.Planet) error {
	return queryCreatePlanet(ctx, s.tx, p)
}

func (s *txStore) GetPlanet(ctx context.Context, id int64) (*model.Planet, error) {
	return queryGetPlanet(ctx, s.tx, id)
}

func (s *txStore) ListPlanets(ctx context.Context) ([]*model.Planet, error) {
	return queryListPlanets(ctx, s.tx)
}

func (s *txStore) UpdatePlanet(ctx context.Context, p *model.Planet) error {
	return queryUpdatePlanet(ctx, s.tx, p)
}

func (s *txStore) DeletePlanet(ctx context.Context, id int64) error {
	return queryDeletePlanet(ctx, s.tx, id)
}

func (s *txStore) UpsertPlanet(ctx context.Context, p *model.Planet) (bool, error) {
	return queryUpsertPlanet(ctx, s.tx, p)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
