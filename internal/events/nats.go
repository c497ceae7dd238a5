package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/planetpulse/internal/metrics"
)

// NATSConfig configures the NATS publisher connection.
type NATSConfig struct {
	URL              string
	BootstrapRetries int           // attempts before giving up (default 3)
	BootstrapDelay   time.Duration // fixed wait between attempts (default 2s)
}

// NATSPublisher publishes events to NATS subjects. Topics map 1:1 to subjects.
type NATSPublisher struct {
	conn    *nats.Conn
	tracer  trace.Tracer
	logger  *slog.Logger
	connect func(url string) (*nats.Conn, error)
}

// NATSOption customizes a NATSPublisher.
type NATSOption func(*NATSPublisher)

// WithNATSLogger sets the publisher's logger.
func WithNATSLogger(l *slog.Logger) NATSOption {
	return func(p *NATSPublisher) { p.logger = l }
}

// WithNATSTracer sets the tracer used for publish spans.
func WithNATSTracer(t trace.Tracer) NATSOption {
	return func(p *NATSPublisher) { p.tracer = t }
}

// NewNATSPublisher connects to cfg.URL, retrying with a fixed delay, and
// fails with ErrBrokerUnreachable once the attempts are used up.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, opts ...NATSOption) (*NATSPublisher, error) {
	p := &NATSPublisher{
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
		connect: func(url string) (*nats.Conn, error) {
			return nats.Connect(url)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats: no URL configured")
	}
	if cfg.BootstrapRetries <= 0 {
		cfg.BootstrapRetries = DefaultBootstrapRetries
	}
	if cfg.BootstrapDelay <= 0 {
		cfg.BootstrapDelay = DefaultBootstrapDelay
	}

	err := waitForBroker(ctx, "nats", cfg.URL, cfg.BootstrapRetries, cfg.BootstrapDelay, p.logger,
		func(ctx context.Context) error {
			nc, err := p.connect(cfg.URL)
			if err != nil {
				return err
			}
			p.conn = nc
			return nil
		})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Publish JSON-encodes event and publishes it on the topic's subject.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	ctx, span := p.tracer.Start(ctx, "publish_nats_event", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "nats"),
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
	return p.send(span, topic, data, headers)
}

// PublishRaw sends value as-is. Every message carries an Event-Time header
// because NATS has no broker timestamp of its own.
func (p *NATSPublisher) PublishRaw(ctx context.Context, topic string, value []byte, headers map[string]string) error {
	_, span := p.tracer.Start(ctx, "publish_nats_message", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination", topic),
	)
	return p.send(span, topic, value, headers)
}

func (p *NATSPublisher) send(span trace.Span, topic string, value []byte, headers map[string]string) error {
	msg := nats.NewMsg(topic)
	msg.Data = value
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	msg.Header.Set(HeaderEventTime, time.Now().UTC().Format(time.RFC3339Nano))

	if err := p.conn.PublishMsg(msg); err != nil {
		return p.fail(span, topic, err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	p.logger.Info("event published", "topic", topic, "event_type", headers[HeaderEventType], "bytes", len(value))
	return nil
}

func (p *NATSPublisher) fail(span trace.Span, topic string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.PublishFailuresTotal.WithLabelValues(topic).Inc()
	p.logger.Error("event publish failed", "topic", topic, "err", err)
	return &PublishError{Topic: topic, Err: err}
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSource receives messages from a subject through a queue group, so
// consumers sharing a group split the stream like a Kafka consumer group.
// Core NATS has no offsets; Commit is a no-op.
type NATSSource struct {
	conn *nats.Conn
	sub  *nats.Subscription
	ch   chan *nats.Msg
}

// NewNATSSource connects with automatic reconnection support and joins queue
// on subject. Extra nats.Option values can be appended.
func NewNATSSource(url, subject, queue string, opts ...nats.Option) (*NATSSource, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to NATS at %s: %v", ErrBrokerUnreachable, url, err)
	}

	ch := make(chan *nats.Msg, 64)
	sub, err := nc.ChanQueueSubscribe(subject, queue, ch)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// Flush ensures the subscription is registered on the server before
	// returning, so that messages published on other connections are routed.
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return &NATSSource{conn: nc, sub: sub, ch: ch}, nil
}

func (s *NATSSource) Fetch(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m, ok := <-s.ch:
		if !ok {
			return Message{}, io.EOF
		}
		return fromNATS(m), nil
	}
}

func fromNATS(m *nats.Msg) Message {
	msg := Message{Topic: m.Subject, Value: m.Data}
	if len(m.Header) > 0 {
		msg.Headers = make(map[string]string, len(m.Header))
		for k := range m.Header {
			msg.Headers[k] = m.Header.Get(k)
		}
	}
	if ts := m.Header.Get(HeaderEventTime); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			msg.Time = t
		}
	}
	return msg
}

func (s *NATSSource) Commit(ctx context.Context, msg Message) error {
	return nil
}

func (s *NATSSource) Close() error {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
	return nil
}
