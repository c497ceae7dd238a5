// Package archive exports audit records as JSONL and ships them to
// long-term destinations.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// pageSize is the number of audit rows fetched per store query.
const pageSize = 500

// Lister pages through audit records in id order.
type Lister interface {
	ListAuditRecords(ctx context.Context, afterID int64, limit int) ([]*model.AuditRecord, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
	FirstID     int64     `json:"first_id"`
	LastID      int64     `json:"last_id"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Summary describes one export.
type Summary struct {
	Count   int
	FirstID int64
	LastID  int64
}

// ExportJSONL writes up to maxRecords audit records with id > afterID to w, preceded
// by a header line. maxRecords <= 0 means no limit. Nothing is written when there are
// no new records.
func ExportJSONL(ctx context.Context, s Lister, afterID int64, maxRecords int, w io.Writer) (Summary, error) {
	var recs []*model.AuditRecord
	cursor := afterID
	for maxRecords <= 0 || len(recs) < maxRecords {
		limit := pageSize
		if maxRecords > 0 && maxRecords-len(recs) < limit {
			limit = maxRecords - len(recs)
		}
		page, err := s.ListAuditRecords(ctx, cursor, limit)
		if err != nil {
			return Summary{}, fmt.Errorf("list audit records after %d: %w", cursor, err)
		}
		recs = append(recs, page...)
		if len(page) < limit {
			break
		}
		cursor = page[len(page)-1].ID
	}

	if len(recs) == 0 {
		return Summary{}, nil
	}
	sum := Summary{Count: len(recs), FirstID: recs[0].ID, LastID: recs[len(recs)-1].ID}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		RecordCount: sum.Count,
		FirstID:     sum.FirstID,
		LastID:      sum.LastID,
	}); err != nil {
		return Summary{}, fmt.Errorf("encode header: %w", err)
	}

	for _, r := range recs {
		if err := enc.Encode(record{Type: "audit_record", Data: r}); err != nil {
			return Summary{}, fmt.Errorf("encode audit record %d: %w", r.ID, err)
		}
	}
	return sum, nil
}
