package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// RawPublisher sends pre-encoded payloads. KafkaPublisher and NATSPublisher
// implement it; the consumer uses it for dead-lettering.
type RawPublisher interface {
	PublishRaw(ctx context.Context, topic string, value []byte, headers map[string]string) error
}

// Emitter wraps a Publisher with a fixed topic and builds model.Event
// envelopes from a type and a payload.
type Emitter struct {
	pub    Publisher
	topic  string
	logger *slog.Logger
}

func NewEmitter(pub Publisher, topic string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, topic: topic, logger: logger}
}

// Emit publishes {"type": eventType, "data": data}. A nil data becomes {}.
func (e *Emitter) Emit(ctx context.Context, eventType string, data any) error {
	raw := json.RawMessage("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			e.logger.Error("failed to publish planet event", "event_type", eventType, "topic", e.topic, "err", err)
			return &PublishError{Topic: e.topic, Err: fmt.Errorf("marshaling %s payload: %w", eventType, err)}
		}
		raw = b
	}

	if err := e.pub.Publish(ctx, e.topic, model.Event{Type: eventType, Data: raw}); err != nil {
		e.logger.Error("failed to publish planet event", "event_type", eventType, "topic", e.topic, "err", err)
		return err
	}
	e.logger.Debug("published planet event", "event_type", eventType, "topic", e.topic)
	return nil
}
