package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxRecords caps the records shipped in one object.
const DefaultMaxRecords = 10000

// Destination stores one exported object.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Archiver exports audit records newer than its watermark to every
// destination. The watermark only advances when all destinations accept the
// object, so a failed run is retried in full on the next one.
type Archiver struct {
	store        Lister
	destinations []Destination
	maxRecords   int
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.Mutex
	watermark int64
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithWatermark starts the archive after the given audit record id.
func WithWatermark(id int64) Option {
	return func(a *Archiver) { a.watermark = id }
}

// WithMaxRecords caps the records per object.
func WithMaxRecords(n int) Option {
	return func(a *Archiver) { a.maxRecords = n }
}

// WithClock overrides the clock used to name objects.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

func New(s Lister, destinations []Destination, logger *slog.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		store:        s,
		destinations: destinations,
		maxRecords:   DefaultMaxRecords,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Watermark returns the id of the last archived audit record.
func (a *Archiver) Watermark() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watermark
}

// ObjectKey names the object holding records first..last.
func ObjectKey(at time.Time, first, last int64) string {
	return fmt.Sprintf("audit-%s-%d-%d.jsonl", at.UTC().Format("20060102T150405Z"), first, last)
}

// Run exports one batch. It satisfies schedule.Job.
func (a *Archiver) Run(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf bytes.Buffer
	sum, err := ExportJSONL(ctx, a.store, a.watermark, a.maxRecords, &buf)
	if err != nil {
		return fmt.Errorf("archive export: %w", err)
	}
	if sum.Count == 0 {
		a.logger.Debug("no new audit records to archive", "watermark", a.watermark)
		return nil
	}

	key := ObjectKey(a.now(), sum.FirstID, sum.LastID)
	data := buf.Bytes()

	var errs []error
	for i, dest := range a.destinations {
		if err := dest.Write(ctx, key, data); err != nil {
			a.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "key", key, "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("archive %s: %w", key, errors.Join(errs...))
	}

	a.watermark = sum.LastID
	a.logger.Info("audit records archived", "key", key, "records", sum.Count, "bytes", len(data), "destinations", len(a.destinations))
	return nil
}
