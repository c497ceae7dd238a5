package events

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TopicPlanetEvents carries planet change events.
const TopicPlanetEvents = "planet_events"

// Header names set on outbound messages.
const (
	HeaderEventType = "event-type"
	HeaderEventTime = "Event-Time"
	HeaderError     = "x-error"
	HeaderSource    = "x-source"
)

// ErrBrokerUnreachable is returned when no broker answers during bootstrap.
var ErrBrokerUnreachable = errors.New("broker unreachable")

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// PublishError reports a failed serialization or send.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Message is one inbound broker message.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time // broker-assigned; zero when the transport has none
}

// Source yields inbound messages for a consumer.
type Source interface {
	// Fetch blocks until a message is available or ctx is done.
	// io.EOF signals that the source is exhausted.
	Fetch(ctx context.Context) (Message, error)
	// Commit acknowledges msg and everything before it on its partition.
	Commit(ctx context.Context, msg Message) error
	Close() error
}
