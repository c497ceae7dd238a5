package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/store"
)

// planetColumns is the column list used for SELECT statements on the planets table.
const planetColumns = `id, name, population, terrains, climates, created_at, updated_at`

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pqErr.Detail)
	}
	return err
}

func queryInsertAuditRecord(ctx context.Context, db executor, rec *model.AuditRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data := jsonbBytes(rec.Data)
	if data == nil {
		data = []byte("{}")
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO audit_records (event_type, data)
		VALUES ($1, $2)
		RETURNING id, consumed_at`,
		rec.EventType, data,
	).Scan(&rec.ID, &rec.ConsumedAt)
}

func queryCountEventsByDay(ctx context.Context, db executor) (model.DayCounts, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT to_char((consumed_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM audit_records
		GROUP BY day
		ORDER BY day ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := model.DayCounts{}
	for rows.Next() {
		var dc model.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func queryListAuditRecords(ctx context.Context, db executor, afterID int64, limit int) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, data, consumed_at
		FROM audit_records
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRecords(rows)
}

func queryCreatePlanet(ctx context.Context, db executor, p *model.Planet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	terrains, climates, err := planetLists(p)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO planets (name, population, terrains, climates)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		p.Name, nullInt64Ptr(p.Population), terrains, climates,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return translate(err)
}

func queryGetPlanet(ctx context.Context, db executor, id int64) (*model.Planet, error) {
	row := db.QueryRowContext(ctx, `SELECT `+planetColumns+` FROM planets WHERE id = $1`, id)
	p, err := scanPlanet(row)
	if err != nil {
		return nil, fmt.Errorf("planet %d: %w", id, translate(err))
	}
	return p, nil
}

func queryListPlanets(ctx context.Context, db executor) ([]*model.Planet, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+planetColumns+` FROM planets ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlanets(rows)
}

func queryUpdatePlanet(ctx context.Context, db executor, p *model.Planet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	terrains, climates, err := planetLists(p)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		UPDATE planets
		SET name = $2, population = $3, terrains = $4, climates = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, nullInt64Ptr(p.Population), terrains, climates,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("planet %d: %w", p.ID, translate(err))
	}
	return nil
}

func queryDeletePlanet(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM planets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("planet %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// queryUpsertPlanet inserts p or overwrites the row with the same name.
// xmax is 0 only for a freshly inserted row version.
func queryUpsertPlanet(ctx context.Context, db executor, p *model.Planet) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	terrains, climates, err := planetLists(p)
	if err != nil {
		return false, err
	}
	var created bool
	err = db.QueryRowContext(ctx, `
		INSERT INTO planets (name, population, terrains, climates)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET population = EXCLUDED.population,
			terrains = EXCLUDED.terrains,
			climates = EXCLUDED.climates,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`,
		p.Name, nullInt64Ptr(p.Population), terrains, climates,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &created)
	if err != nil {
		return false, err
	}
	return created, nil
}
