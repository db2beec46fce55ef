package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/config"
	"github.com/libreria-tm/backend/internal/idempotency"
	"github.com/libreria-tm/backend/internal/messaging"
	"github.com/libreria-tm/backend/internal/messaging/kafka"
	"github.com/libreria-tm/backend/internal/messaging/watermill"
)

// openBroker selects the event transport named by cfg.Driver.
func openBroker(cfg config.MessagingConfig) (messaging.Broker, error) {
	switch cfg.Driver {
	case "kafka":
		zap.L().Info("messaging over kafka-go", zap.Strings("brokers", cfg.Brokers))
		return kafka.NewKafkaBroker(cfg.Brokers), nil
	case "watermill-kafka":
		zap.L().Info("messaging over watermill-kafka", zap.Strings("brokers", cfg.Brokers))
		return watermill.NewKafkaBroker(cfg.Brokers, zap.L())
	case "memory":
		return watermill.NewChannelBroker(zap.L()), nil
	default:
		return messaging.NopBroker{}, nil
	}
}

// openLocker returns the idempotency lock store. Redis is used when
// enabled; otherwise locks only hold within this process.
func openLocker(ctx context.Context, cfg config.RedisConfig) (idempotency.Locker, func() error, error) {
	if !cfg.Enabled {
		return idempotency.NewLocalLocker(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	zap.L().Info("idempotency locks in redis", zap.String("addr", cfg.Addr))
	return idempotency.NewRedisLocker(client, cfg.Prefix), client.Close, nil
}
