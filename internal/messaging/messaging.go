package messaging

import (
	"context"

	"go.uber.org/zap"
)

// Topics carried by the broker.
const (
	TopicSaleCompleted = "sales.completed"
	TopicLowStock      = "inventory.low_stock"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber defines an interface for subscribing to a message topic.
// Consume blocks until ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler Handler)
}

// Broker is a Publisher and Subscriber that owns connections.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// NopBroker drops every event. Used when messaging.driver is none.
type NopBroker struct{}

func (NopBroker) PublishEvent(_ context.Context, topic string, key string, _ any) error {
	zap.L().Debug("event dropped, messaging disabled", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (NopBroker) Consume(ctx context.Context, _ string, _ string, _ Handler) {
	<-ctx.Done()
}

func (NopBroker) Close() error { return nil }
