package model

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// Planet event types carried in Event.Type.
const (
	EventPlanetCreated = "created"
	EventPlanetUpdated = "updated"
	EventPlanetDeleted = "deleted"
)

// MaxEventTypeLen is the width of the audit_records.event_type column, in characters.
const MaxEventTypeLen = 50

// Event is the broker payload: {"type": "...", "data": {...}}.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AuditRecord is the durable, append-only copy of a consumed event.
type AuditRecord struct {
	ID         int64           `json:"id"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	ConsumedAt time.Time       `json:"consumed_at"`
}

// Validate checks the record fits the audit table.
func (r *AuditRecord) Validate() error {
	if utf8.RuneCountInString(r.EventType) > MaxEventTypeLen {
		return fmt.Errorf("event type %q exceeds %d characters", r.EventType, MaxEventTypeLen)
	}
	return nil
}
