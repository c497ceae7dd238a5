package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAuditRecord scans a single row into a model.AuditRecord.
func scanAuditRecord(row scannable) (*model.AuditRecord, error) {
	var r model.AuditRecord
	var data []byte
	if err := row.Scan(&r.ID, &r.EventType, &data, &r.ConsumedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		r.Data = json.RawMessage(data)
	}
	return &r, nil
}

func scanAuditRecords(rows *sql.Rows) ([]*model.AuditRecord, error) {
	var recs []*model.AuditRecord
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// scanPlanet scans a single row into a model.Planet.
// The row must contain columns in the order defined by planetColumns.
func scanPlanet(row scannable) (*model.Planet, error) {
	var p model.Planet
	var (
		population sql.NullInt64
		terrains   []byte
		climates   []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&population,
		&terrains,
		&climates,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if population.Valid {
		n := population.Int64
		p.Population = &n
	}
	if p.Terrains, err = decodeList(terrains); err != nil {
		return nil, fmt.Errorf("planet %d terrains: %w", p.ID, err)
	}
	if p.Climates, err = decodeList(climates); err != nil {
		return nil, fmt.Errorf("planet %d climates: %w", p.ID, err)
	}
	return &p, nil
}

func scanPlanets(rows *sql.Rows) ([]*model.Planet, error) {
	planets := []*model.Planet{}
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			return nil, err
		}
		planets = append(planets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return planets, nil
}

func decodeList(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// planetLists encodes the JSONB list columns of p.
func planetLists(p *model.Planet) (terrains, climates []byte, err error) {
	p.Normalize()
	if terrains, err = json.Marshal(p.Terrains); err != nil {
		return nil, nil, err
	}
	if climates, err = json.Marshal(p.Climates); err != nil {
		return nil, nil, err
	}
	return terrains, climates, nil
}

// nullInt64Ptr converts a *int64 to sql.NullInt64 (nil → NULL).
func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
