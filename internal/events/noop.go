package events

import "context"

// NoopPublisher is a Publisher that does nothing (used when no broker is configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

func (n *NoopPublisher) PublishRaw(ctx context.Context, topic string, value []byte, headers map[string]string) error {
	return nil
}
