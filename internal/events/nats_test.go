package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alfredjeanlab/planetpulse/internal/metrics"
	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// withNATSConnect swaps the connect function for a test double.
func withNATSConnect(connect func(url string) (*nats.Conn, error)) NATSOption {
	return func(p *NATSPublisher) { p.connect = connect }
}

func newTestNATSPublisher(t *testing.T, url string) (*NATSPublisher, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	pub, err := NewNATSPublisher(context.Background(), NATSConfig{URL: url},
		WithNATSLogger(discardLogger()), WithNATSTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })
	return pub, sr
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)
	pub, sr := newTestNATSPublisher(t, url)
	topic := "nats_publish_test"
	before := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic))

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(topic, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := model.Event{Type: model.EventPlanetCreated, Data: json.RawMessage(`{"name":"Naboo"}`)}
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got model.Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "created" {
			t.Errorf("got type=%q, want created", got.Type)
		}
		if msg.Header.Get(HeaderEventType) != "created" {
			t.Errorf("event-type header = %q", msg.Header.Get(HeaderEventType))
		}
		if _, err := time.Parse(time.RFC3339Nano, msg.Header.Get(HeaderEventTime)); err != nil {
			t.Errorf("Event-Time header not RFC3339: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}

	if after := testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(topic)); after-before != 1 {
		t.Errorf("events_published_total delta = %v, want 1", after-before)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "publish_nats_event" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := span.Attributes()
	if spanAttr(attrs, "messaging.system") != "nats" || spanAttr(attrs, "messaging.destination") != topic {
		t.Errorf("span attrs = %v", attrs)
	}
	if spanAttr(attrs, "messaging.message_payload") != `{"type":"created","data":{"name":"Naboo"}}` {
		t.Errorf("payload attr = %q", spanAttr(attrs, "messaging.message_payload"))
	}
}

func TestNATSPublisher_SerializationFailure(t *testing.T) {
	url := startTestNATS(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	var buf bytes.Buffer
	pub, err := NewNATSPublisher(context.Background(), NATSConfig{URL: url},
		WithNATSLogger(slog.New(slog.NewTextHandler(&buf, nil))), WithNATSTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	err = pub.Publish(context.Background(), "nats_serialize_fail", map[string]any{"ch": make(chan int)})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PublishError", err)
	}
	if got := sr.Ended()[0].Status().Code; got != codes.Error {
		t.Errorf("span status = %v, want Error", got)
	}
	if !strings.Contains(buf.String(), "event publish failed") {
		t.Errorf("expected error log, got:\n%s", buf.String())
	}
}

func TestNATSPublisher_PublishRaw(t *testing.T) {
	url := startTestNATS(t)
	pub, sr := newTestNATSPublisher(t, url)

	if err := pub.PublishRaw(context.Background(), "planet_events.dlq", []byte("not json"), map[string]string{HeaderError: "boom"}); err != nil {
		t.Fatalf("PublishRaw: %v", err)
	}
	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "publish_nats_message" {
		t.Fatalf("spans = %v", spans)
	}
	if spanAttr(spans[0].Attributes(), "messaging.destination") != "planet_events.dlq" {
		t.Errorf("span attrs = %v", spans[0].Attributes())
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(context.Background(), NATSConfig{URL: url}, WithNATSLogger(discardLogger()))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	err = pub.Publish(context.Background(), TopicPlanetEvents, model.Event{Type: "created"})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want *PublishError after close", err)
	}
}

func TestNATSPublisher_BootstrapExhausted(t *testing.T) {
	var buf bytes.Buffer
	start := time.Now()
	_, err := NewNATSPublisher(context.Background(),
		NATSConfig{URL: "nats://127.0.0.1:1", BootstrapRetries: 3, BootstrapDelay: 20 * time.Millisecond},
		WithNATSLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if !errors.Is(err, ErrBrokerUnreachable) {
		t.Fatalf("err = %v, want ErrBrokerUnreachable", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want at least two retry delays", elapsed)
	}
	out := buf.String()
	if got := strings.Count(out, "nats not available"); got != 3 {
		t.Errorf("attempt logs = %d, want 3:\n%s", got, out)
	}
	if !strings.Contains(out, "attempt=3/3") {
		t.Errorf("expected final attempt log, got:\n%s", out)
	}
}

func TestNATSPublisher_BootstrapRetriesThenSucceeds(t *testing.T) {
	url := startTestNATS(t)
	calls := 0
	connect := func(u string) (*nats.Conn, error) {
		calls++
		if calls < 2 {
			return nil, nats.ErrNoServers
		}
		return nats.Connect(u)
	}

	pub, err := NewNATSPublisher(context.Background(),
		NATSConfig{URL: url, BootstrapRetries: 3, BootstrapDelay: time.Millisecond},
		WithNATSLogger(discardLogger()), withNATSConnect(connect))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pub.Close()
	if calls != 2 {
		t.Errorf("connect calls = %d, want 2", calls)
	}
}

func TestNATSPublisher_BootstrapContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	connect := func(u string) (*nats.Conn, error) {
		cancel()
		return nil, nats.ErrNoServers
	}

	_, err := NewNATSPublisher(ctx,
		NATSConfig{URL: "nats://127.0.0.1:1", BootstrapRetries: 3, BootstrapDelay: time.Hour},
		WithNATSLogger(discardLogger()), withNATSConnect(connect))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewNATSPublisher_NoURL(t *testing.T) {
	if _, err := NewNATSPublisher(context.Background(), NATSConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
