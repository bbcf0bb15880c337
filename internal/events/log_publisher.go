package events

import (
	"context"

	"github.com/aquatrack-hygiene/service-booking/internal/platform/kafka"
	"go.uber.org/zap"
)

// LogPublisher stands in for the Kafka producer when messaging is disabled.
// Events are logged and dropped.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishEvent(_ context.Context, topic string, ce kafka.CloudEvent) error {
	p.logger.Debug("event dropped, kafka disabled",
		zap.String("topic", topic),
		zap.String("type", ce.Type),
		zap.String("subject", ce.Subject),
	)
	return nil
}
