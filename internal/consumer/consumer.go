// Package consumer records inbound planet events and keeps the day counts current.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/events"
	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// Policy decides what happens to a message that could not be processed.
type Policy string

const (
	// PolicyDrop logs the failure and moves on.
	PolicyDrop Policy = "drop"
	// PolicyRetry re-runs the handler a bounded number of times before dropping.
	PolicyRetry Policy = "retry"
	// PolicyDeadLetter republishes the raw message to a dead-letter topic.
	PolicyDeadLetter Policy = "dead-letter"
)

// AuditStore persists audit records.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *model.AuditRecord) error
}

// DayCounter bumps the running count for a UTC day.
type DayCounter interface {
	Increment(ctx context.Context, day string) error
}

// Options configures failure handling.
type Options struct {
	Policy       Policy
	MaxAttempts  int           // total handler runs under PolicyRetry (default 3)
	RetryBackoff time.Duration // fixed wait between runs (default 1s)
	DLQTopic     string
	DLQ          events.RawPublisher // required for PolicyDeadLetter
	FetchBackoff time.Duration       // wait after a failed fetch (default 1s)
}

// Consumer processes messages from a Source one at a time, committing each
// after its failure policy has run.
type Consumer struct {
	source  events.Source
	store   AuditStore
	counter DayCounter
	opts    Options
	logger  *slog.Logger
}

func New(src events.Source, st AuditStore, counter DayCounter, opts Options, logger *slog.Logger) (*Consumer, error) {
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	switch opts.Policy {
	case PolicyDrop, PolicyRetry:
	case PolicyDeadLetter:
		if opts.DLQ == nil || opts.DLQTopic == "" {
			return nil, fmt.Errorf("dead-letter policy needs a publisher and a topic")
		}
	default:
		return nil, fmt.Errorf("unknown failure policy %q", opts.Policy)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{source: src, store: st, counter: counter, opts: opts, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the source is exhausted.
// A failing message never stops the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "policy", string(c.opts.Policy))
	defer c.logger.Info("consumer stopped")

	for {
		msg, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("fetch failed", "err", err)
			if !sleep(ctx, c.opts.FetchBackoff) {
				return nil
			}
			continue
		}

		c.process(ctx, msg)

		if err := c.source.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

// process runs Handle and applies the failure policy. It logs at most one
// error per message.
func (c *Consumer) process(ctx context.Context, msg events.Message) {
	start := time.Now()
	defer func() { metrics.ConsumerProcessingDuration.Observe(time.Since(start).Seconds()) }()

	attempts := 1
	err := c.Handle(ctx, msg)
	if err == nil {
		return
	}

	switch c.opts.Policy {
	case PolicyRetry:
		for attempts < c.opts.MaxAttempts {
			if !sleep(ctx, c.opts.RetryBackoff) {
				break
			}
			attempts++
			if err = c.Handle(ctx, msg); err == nil {
				return
			}
		}
	case PolicyDeadLetter:
		headers := map[string]string{
			events.HeaderError:  err.Error(),
			events.HeaderSource: fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		}
		if dlqErr := c.opts.DLQ.PublishRaw(ctx, c.opts.DLQTopic, msg.Value, headers); dlqErr != nil {
			err = fmt.Errorf("%w (dead-letter publish failed: %v)", err, dlqErr)
			break
		}
		metrics.ConsumerFailuresTotal.WithLabelValues(string(c.opts.Policy)).Inc()
		c.logger.Error("message dead-lettered",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"dlq_topic", c.opts.DLQTopic, "err", err)
		return
	}

	metrics.ConsumerFailuresTotal.WithLabelValues(string(c.opts.Policy)).Inc()
	c.logger.Error("failed to process message",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
		"attempts", attempts, "err", err)
}

// Handle records one message: audit row first, then the day count for the
// message's broker timestamp.
func (c *Consumer) Handle(ctx context.Context, msg events.Message) error {
	eventType, data, err := decode(msg.Value)
	if err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}

	rec := &model.AuditRecord{EventType: eventType, Data: data}
	if err := c.store.InsertAuditRecord(ctx, rec); err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}

	day := model.DayKey(msg.Time)
	if err := c.counter.Increment(ctx, day); err != nil {
		return fmt.Errorf("updating day counts: %w", err)
	}

	metrics.EventsConsumedTotal.WithLabelValues(eventType).Inc()
	c.logger.Info("consumed event",
		"event_type", eventType, "topic", msg.Topic, "partition", msg.Partition,
		"offset", msg.Offset, "day", day)
	return nil
}

// decode extracts type and data from a {"type": ..., "data": {...}} body.
// An empty body is an empty event. A non-string type becomes "" and a
// non-object data becomes {}.
func decode(body []byte) (string, json.RawMessage, error) {
	empty := json.RawMessage("{}")
	if len(bytes.TrimSpace(body)) == 0 {
		return "", empty, nil
	}

	var env struct {
		Type json.RawMessage `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, err
	}

	var eventType string
	if len(env.Type) > 0 {
		if err := json.Unmarshal(env.Type, &eventType); err != nil {
			eventType = ""
		}
	}

	data := empty
	if trimmed := bytes.TrimSpace(env.Data); len(trimmed) > 0 && trimmed[0] == '{' {
		data = trimmed
	}
	return eventType, data, nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
