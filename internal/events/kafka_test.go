package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// withFakes swaps the dialer and writer for test doubles.
func withFakes(dial dialFunc, w messageWriter) KafkaOption {
	return func(p *KafkaPublisher) {
		p.dial = dial
		p.writer = w
	}
}

func dialOK(ctx context.Context, addr string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestBootstrap_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	dial := func(ctx context.Context, addr string) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := NewKafkaPublisher(context.Background(),
		KafkaConfig{Brokers: []string{"k1:9092"}, BootstrapRetries: 3, BootstrapDelay: time.Millisecond},
		WithLogger(logger), withFakes(dial, &fakeWriter{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("dial calls = %d, want 3", calls)
	}
	out := buf.String()
	if !strings.Contains(out, "attempt=1/3") || !strings.Contains(out, "attempt=2/3") {
		t.Errorf("expected attempt logs, got:\n%s", out)
	}
}

func TestBootstrap_Exhausted(t *testing.T) {
	calls := 0
	dial := func(ctx context.Context, addr string) error {
		calls++
		return errors.New("connection refused")
	}

	_, err := NewKafkaPublisher(context.Background(),
		KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}, BootstrapRetries: 3, BootstrapDelay: time.Millisecond},
		WithLogger(discardLogger()), withFakes(dial, &fakeWriter{}))
	if !errors.Is(err, ErrBrokerUnreachable) {
		t.Fatalf("err = %v, want ErrBrokerUnreachable", err)
	}
	if calls != 6 {
		t.Errorf("dial calls = %d, want 6 (3 attempts x 2 brokers)", calls)
	}
}

func TestBootstrap_SecondBrokerAnswers(t *testing.T) {
	var dialed []string
	dial := func(ctx context.Context, addr string) error {
		dialed = append(dialed, addr)
		if addr == "k1:9092" {
			return errors.New("down")
		}
		return nil
	}

	_, err := NewKafkaPublisher(context.Background(),
		KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}, BootstrapRetries: 1},
		WithLogger(discardLogger()), withFakes(dial, &fakeWriter{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dialed) != 2 {
		t.Errorf("dialed = %v, want both brokers", dialed)
	}
}

func TestBootstrap_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dial := func(ctx context.Context, addr string) error {
		cancel()
		return errors.New("down")
	}

	_, err := NewKafkaPublisher(ctx,
		KafkaConfig{Brokers: []string{"k1:9092"}, BootstrapRetries: 3, BootstrapDelay: time.Hour},
		WithLogger(discardLogger()), withFakes(dial, &fakeWriter{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(context.Background(), KafkaConfig{}, withFakes(dialOK, &fakeWriter{}))
	if err == nil {
		t.Fatal("expected error for empty broker list")
	}
}

func newTestKafka(t *testing.T, w *fakeWriter) (*KafkaPublisher, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p, err := NewKafkaPublisher(context.Background(),
		KafkaConfig{Brokers: []string{"k1:9092"}},
		WithLogger(discardLogger()), WithTracer(tp.Tracer("test")), withFakes(dialOK, w))
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	return p, sr
}

func spanAttr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p, sr := newTestKafka(t, w)
	topic := "publish_test"
	before := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic))

	event := model.Event{Type: model.EventPlanetCreated, Data: json.RawMessage(`{"id":1,"name":"Tatooine"}`)}
	if err := p.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != topic {
		t.Errorf("topic = %q, want %q", msg.Topic, topic)
	}
	if !strings.HasPrefix(string(msg.Key), "evt-") {
		t.Errorf("key = %q, want evt- prefix", msg.Key)
	}
	var got model.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "created" || string(got.Data) != `{"id":1,"name":"Tatooine"}` {
		t.Errorf("payload = %s", msg.Value)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != HeaderEventType || string(msg.Headers[0].Value) != "created" {
		t.Errorf("headers = %v", msg.Headers)
	}

	after := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic))
	if after-before != 1 {
		t.Errorf("events_published_total delta = %v, want 1", after-before)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "publish_kafka_event" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := span.Attributes()
	if spanAttr(attrs, "messaging.system") != "kafka" || spanAttr(attrs, "messaging.destination") != topic {
		t.Errorf("span attrs = %v", attrs)
	}
	if spanAttr(attrs, "messaging.message_payload") != string(msg.Value) {
		t.Errorf("payload attr = %q", spanAttr(attrs, "messaging.message_payload"))
	}
}

func TestKafkaPublisher_PublishArbitraryValue(t *testing.T) {
	w := &fakeWriter{}
	p, _ := newTestKafka(t, w)

	if err := p.Publish(context.Background(), "misc", map[string]int{"n": 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if string(w.msgs[0].Value) != `{"n":1}` {
		t.Errorf("value = %s", w.msgs[0].Value)
	}
	if len(w.msgs[0].Headers) != 0 {
		t.Errorf("headers = %v, want none", w.msgs[0].Headers)
	}
}

func TestKafkaPublisher_SerializationFailure(t *testing.T) {
	w := &fakeWriter{}
	p, sr := newTestKafka(t, w)
	topic := "serialize_fail"
	before := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic))

	err := p.Publish(context.Background(), topic, map[string]any{"ch": make(chan int)})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PublishError", err)
	}
	if pe.Topic != topic {
		t.Errorf("PublishError.Topic = %q", pe.Topic)
	}
	if len(w.msgs) != 0 {
		t.Errorf("wrote %d messages, want 0", len(w.msgs))
	}
	if after := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic)); after != before {
		t.Errorf("counter moved on failure: %v -> %v", before, after)
	}
	if got := sr.Ended()[0].Status().Code; got != codes.Error {
		t.Errorf("span status = %v, want Error", got)
	}
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	sendErr := errors.New("writer closed")
	w := &fakeWriter{err: sendErr}
	p, _ := newTestKafka(t, w)
	topic := "write_fail"
	before := testutil.ToFloat64(metrics.PublishFailuresTotal.WithLabelValues(topic))

	err := p.Publish(context.Background(), topic, model.Event{Type: "created", Data: json.RawMessage(`{}`)})
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}
	if after := testutil.ToFloat64(metrics.PublishFailuresTotal.WithLabelValues(topic)); after-before != 1 {
		t.Errorf("failures delta = %v, want 1", after-before)
	}
}

func TestKafkaPublisher_PublishRaw(t *testing.T) {
	w := &fakeWriter{}
	p, sr := newTestKafka(t, w)

	err := p.PublishRaw(context.Background(), "planet_events.dlq", []byte("not json"), map[string]string{HeaderError: "boom"})
	if err != nil {
		t.Fatalf("PublishRaw: %v", err)
	}
	if string(w.msgs[0].Value) != "not json" {
		t.Errorf("value = %q", w.msgs[0].Value)
	}
	if w.msgs[0].Headers[0].Key != HeaderError {
		t.Errorf("headers = %v", w.msgs[0].Headers)
	}
	if sr.Ended()[0].Name() != "publish_kafka_message" {
		t.Errorf("span name = %q", sr.Ended()[0].Name())
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p, _ := newTestKafka(t, w)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, errors.New("reader closed: EOF")
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaSource_FetchAndCommit(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	r := &fakeReader{msgs: []kafka.Message{{
		Topic:     "planet_events",
		Partition: 2,
		Offset:    41,
		Key:       []byte("evt-1"),
		Value:     []byte(`{"type":"created","data":{}}`),
		Headers:   []kafka.Header{{Key: HeaderEventType, Value: []byte("created")}},
		Time:      ts,
	}}}
	src := &KafkaSource{reader: r}

	msg, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if msg.Partition != 2 || msg.Offset != 41 || !msg.Time.Equal(ts) {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Headers[HeaderEventType] != "created" {
		t.Errorf("headers = %v", msg.Headers)
	}

	if err := src.Commit(context.Background(), msg); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(r.committed) != 1 || r.committed[0].Offset != 41 || r.committed[0].Partition != 2 {
		t.Errorf("committed = %+v", r.committed)
	}
}
