package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/planetpulse/internal/idgen"
	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

const tracerName = "github.com/alfredjeanlab/planetpulse/internal/events"

// KafkaConfig configures the Kafka producer bootstrap.
type KafkaConfig struct {
	Brokers          []string
	BootstrapRetries int           // attempts before giving up (default 3)
	BootstrapDelay   time.Duration // fixed wait between attempts (default 2s)
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// dialFunc checks that a broker answers at addr.
type dialFunc func(ctx context.Context, addr string) error

func dialKafka(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// KafkaPublisher sends JSON-encoded events to Kafka topics without waiting
// for broker acknowledgement. Build one per process and share it.
type KafkaPublisher struct {
	writer messageWriter
	tracer trace.Tracer
	logger *slog.Logger
	dial   dialFunc
}

// KafkaOption customizes a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithLogger sets the publisher's logger.
func WithLogger(l *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) { p.logger = l }
}

// WithTracer sets the tracer used for publish spans.
func WithTracer(t trace.Tracer) KafkaOption {
	return func(p *KafkaPublisher) { p.tracer = t }
}

// NewKafkaPublisher verifies that at least one broker answers, retrying with
// a fixed delay, and returns a publisher backed by an async kafka.Writer.
// It fails with ErrBrokerUnreachable once the attempts are used up.
func NewKafkaPublisher(ctx context.Context, cfg KafkaConfig, opts ...KafkaOption) (*KafkaPublisher, error) {
	p := &KafkaPublisher{
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
		dial:   dialKafka,
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.BootstrapRetries <= 0 {
		cfg.BootstrapRetries = DefaultBootstrapRetries
	}
	if cfg.BootstrapDelay <= 0 {
		cfg.BootstrapDelay = DefaultBootstrapDelay
	}

	if err := bootstrap(ctx, cfg, p.dial, p.logger); err != nil {
		return nil, err
	}

	if p.writer == nil {
		logger := p.logger
		p.writer = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            5,
			WriteBackoffMin:        time.Second,
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error("kafka async delivery failed", "messages", len(messages), "err", err)
				}
			},
		}
	}
	return p, nil
}

func bootstrap(ctx context.Context, cfg KafkaConfig, dial dialFunc, logger *slog.Logger) error {
	return waitForBroker(ctx, "kafka", fmt.Sprint(cfg.Brokers), cfg.BootstrapRetries, cfg.BootstrapDelay, logger,
		func(ctx context.Context) error {
			var err error
			for _, addr := range cfg.Brokers {
				if err = dial(ctx, addr); err == nil {
					return nil
				}
			}
			return err
		})
}

// Publish JSON-encodes event and hands it to the writer.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event any) error {
	ctx, span := p.tracer.Start(ctx, "publish_kafka_event", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
	)

	data, err := json.Marshal(event)
	if err != nil {
		return p.fail(span, topic, fmt.Errorf("marshaling event: %w", err))
	}
	span.SetAttributes(attribute.String("messaging.message_payload", string(data)))

	headers := map[string]string{}
	if t := eventType(event); t != "" {
		headers[HeaderEventType] = t
	}
	return p.send(ctx, span, topic, data, headers)
}

// PublishRaw sends an already-encoded payload, e.g. to a dead-letter topic.
func (p *KafkaPublisher) PublishRaw(ctx context.Context, topic string, value []byte, headers map[string]string) error {
	ctx, span := p.tracer.Start(ctx, "publish_kafka_message", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
	)
	return p.send(ctx, span, topic, value, headers)
}

func (p *KafkaPublisher) send(ctx context.Context, span trace.Span, topic string, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(idgen.EventKey()),
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return p.fail(span, topic, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	p.logger.Info("event published", "topic", topic, "event_type", headers[HeaderEventType], "bytes", len(value))
	return nil
}

func (p *KafkaPublisher) fail(span trace.Span, topic string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.PublishFailuresTotal.WithLabelValues(topic).Inc()
	p.logger.Error("event publish failed", "topic", topic, "err", err)
	return &PublishError{Topic: topic, Err: err}
}

// Close flushes buffered messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func eventType(event any) string {
	switch e := event.(type) {
	case model.Event:
		return e.Type
	case *model.Event:
		if e != nil {
			return e.Type
		}
	}
	return ""
}

// messageReader is the subset of *kafka.Reader used by KafkaSource.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads a topic as part of a consumer group and commits offsets
// only when asked, so a message is acknowledged after it has been handled.
type KafkaSource struct {
	reader messageReader
}

// NewKafkaSource joins groupID on topic. New groups start from the earliest offset.
func NewKafkaSource(brokers []string, topic, groupID string) *KafkaSource {
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10_000_000, // 10MB
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

func (s *KafkaSource) Fetch(ctx context.Context) (Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, err
	}
	msg := Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg, nil
}

func (s *KafkaSource) Commit(ctx context.Context, msg Message) error {
	return s.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
