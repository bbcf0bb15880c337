package application

import (
	"context"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/platform/kafka"
	"go.uber.org/zap"
)

const eventSource = "service-booking"

// EventPublisher delivers domain events. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// Locker grants short-lived exclusive locks. *cache.RedisLocker and
// *cache.LocalLocker satisfy it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// PaymentSettings bounds calls to the payment gateway.
type PaymentSettings struct {
	Timeout time.Duration
	LockTTL time.Duration
}

func (p PaymentSettings) withDefaults() PaymentSettings {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.LockTTL <= 0 {
		p.LockTTL = p.Timeout + 5*time.Second
	}
	return p
}

// eventEmitter wraps a publisher with the envelope and error logging every
// service shares. Publish failures never fail the use case.
type eventEmitter struct {
	producer EventPublisher
	logger   *zap.Logger
}

func (e eventEmitter) publishEvent(ctx context.Context, topic, eventType, key string, data interface{}) {
	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		e.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	cloudEvent.Subject = key

	if err := e.producer.PublishEvent(ctx, topic, cloudEvent); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
