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

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicPlanetEvents, model.Event{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestImplementations(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*KafkaPublisher)(nil)
	var _ RawPublisher = (*NATSPublisher)(nil)
	var _ RawPublisher = (*KafkaPublisher)(nil)
	var _ RawPublisher = (*NoopPublisher)(nil)
	var _ Source = (*KafkaSource)(nil)
	var _ Source = (*NATSSource)(nil)
}

func TestPublishError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&PublishError{Topic: "planet_events", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("PublishError should unwrap to its cause")
	}
	if err.Error() != "publish to planet_events: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	NoopPublisher
	topics []string
	events []any
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
	return nil
}

func TestEmitter_Emit(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, TopicPlanetEvents, discardLogger())

	if err := e.Emit(context.Background(), model.EventPlanetDeleted, map[string]int64{"id": 7}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit(context.Background(), model.EventPlanetUpdated, nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(pub.events) != 2 || pub.topics[0] != TopicPlanetEvents {
		t.Fatalf("published %v to %v", pub.events, pub.topics)
	}
	first := pub.events[0].(model.Event)
	if first.Type != "deleted" || string(first.Data) != `{"id":7}` {
		t.Errorf("first = %+v", first)
	}
	second := pub.events[1].(model.Event)
	if string(second.Data) != "{}" {
		t.Errorf("nil data encoded as %s, want {}", second.Data)
	}
}

func TestEmitter_PublishFailure(t *testing.T) {
	cause := &PublishError{Topic: TopicPlanetEvents, Err: errors.New("down")}
	e := NewEmitter(&recordingPublisher{err: cause}, TopicPlanetEvents, discardLogger())

	err := e.Emit(context.Background(), model.EventPlanetCreated, map[string]string{"name": "Hoth"})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PublishError", err)
	}
}

func TestEmitter_BadPayload(t *testing.T) {
	pub := &recordingPublisher{}
	var buf bytes.Buffer
	e := NewEmitter(pub, TopicPlanetEvents, slog.New(slog.NewTextHandler(&buf, nil)))

	err := e.Emit(context.Background(), model.EventPlanetCreated, func() {})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PublishError", err)
	}
	if len(pub.events) != 0 {
		t.Error("nothing should be published for an unencodable payload")
	}
	out := buf.String()
	if !strings.Contains(out, "failed to publish planet event") || !strings.Contains(out, "event_type=created") {
		t.Errorf("expected error log, got:\n%s", out)
	}
}

func TestNATSSource_Fetch(t *testing.T) {
	url := startTestNATS(t)

	src, err := NewNATSSource(url, TopicPlanetEvents, "analytics-consumer")
	if err != nil {
		t.Fatalf("creating source: %v", err)
	}
	defer src.Close()

	pub, err := NewNATSPublisher(context.Background(), NATSConfig{URL: url}, WithNATSLogger(discardLogger()))
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	before := time.Now().Add(-time.Second)
	event := model.Event{Type: model.EventPlanetDeleted, Data: json.RawMessage(`{"id":3}`)}
	if err := pub.Publish(context.Background(), TopicPlanetEvents, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	pub.conn.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if msg.Topic != TopicPlanetEvents {
		t.Errorf("topic = %q", msg.Topic)
	}
	if msg.Time.Before(before) {
		t.Errorf("time = %v, want parsed Event-Time header", msg.Time)
	}
	if msg.Headers[HeaderEventType] != "deleted" {
		t.Errorf("headers = %v", msg.Headers)
	}
	if err := src.Commit(ctx, msg); err != nil {
		t.Errorf("Commit: %v", err)
	}
}

func TestNATSSource_FetchHonorsContext(t *testing.T) {
	url := startTestNATS(t)

	src, err := NewNATSSource(url, TopicPlanetEvents, "g")
	if err != nil {
		t.Fatalf("creating source: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Fetch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestFromNATS_NoHeaders(t *testing.T) {
	msg := fromNATS(&nats.Msg{Subject: "s", Data: []byte("x")})
	if !msg.Time.IsZero() {
		t.Errorf("time = %v, want zero without Event-Time", msg.Time)
	}
	if msg.Headers != nil {
		t.Errorf("headers = %v, want nil", msg.Headers)
	}
}
