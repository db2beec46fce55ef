// Package watermill implements the messaging ports on top of watermill,
// either in process (gochannel) or over Kafka (watermill-kafka + sarama).
package watermill

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/messaging"
)

// metadata key carrying the partition key
const keyMetadata = "key"

type broker struct {
	publisher     message.Publisher
	newSubscriber func(groupID string) (message.Subscriber, error)
	logger        watermill.LoggerAdapter

	mu          sync.Mutex
	subscribers []message.Subscriber
}

// NewChannelBroker returns an in-process broker. Messages are kept so that a
// subscriber started after a publish still receives them.
func NewChannelBroker(logger *zap.Logger) messaging.Broker {
	wl := NewZapAdapter(logger)
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          true,
	}, wl)
	return &broker{
		publisher:     ch,
		newSubscriber: func(string) (message.Subscriber, error) { return ch, nil },
		logger:        wl,
	}
}

// NewKafkaBroker returns a broker using watermill-kafka with sarama clients.
func NewKafkaBroker(brokers []string, logger *zap.Logger) (messaging.Broker, error) {
	wl := NewZapAdapter(logger)
	marshaler := kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(keyMetadata), nil
	})

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: kafka.DefaultSaramaSyncPublisherConfig(),
	}, wl)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka publisher")
	}

	return &broker{
		publisher: pub,
		newSubscriber: func(groupID string) (message.Subscriber, error) {
			cfg := kafka.DefaultSaramaSubscriberConfig()
			cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
			return kafka.NewSubscriber(kafka.SubscriberConfig{
				Brokers:               brokers,
				Unmarshaler:           marshaler,
				OverwriteSaramaConfig: cfg,
				ConsumerGroup:         groupID,
			}, wl)
		},
		logger: wl,
	}, nil
}

func (b *broker) PublishEvent(_ context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(keyMetadata, key)
	return errors.Wrapf(b.publisher.Publish(topic, msg), "publish to %s", topic)
}

// Consume acks every message, including ones the handler rejected; handler
// errors are logged like the kafka-go consumer does.
func (b *broker) Consume(ctx context.Context, topic string, groupID string, handler messaging.Handler) {
	sub, err := b.newSubscriber(groupID)
	if err != nil {
		zap.L().Error("create subscriber", zap.String("topic", topic), zap.Error(err))
		return
	}
	b.track(sub)

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		zap.L().Error("subscribe", zap.String("topic", topic), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("consumer shutting down", zap.String("topic", topic))
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := handler(msg.Context(), msg.Payload); err != nil {
				zap.L().Error("error handling message",
					zap.String("topic", topic),
					zap.String("message_uuid", msg.UUID),
					zap.Error(err))
			}
			msg.Ack()
		}
	}
}

func (b *broker) track(sub message.Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subscribers {
		if any(s) == any(sub) {
			return
		}
	}
	b.subscribers = append(b.subscribers, sub)
}

func (b *broker) Close() error {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	var first error
	for _, s := range subs {
		if any(s) == any(b.publisher) {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := b.publisher.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
