package repository

import (
	"context"
	"strconv"
	"time"

	"FinTrade/internal/domain/models"
	pkgkafka "FinTrade/pkg/kafka"

	"github.com/google/uuid"
)

// KafkaEventPublisher emits engine events keyed by ticket, or by symbol for
// events without one, so a ticket's transitions stay ordered in a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e models.EngineEvent) error {
	stampEvent(&e)
	key := e.Symbol
	if e.Ticket != 0 {
		key = strconv.FormatInt(e.Ticket, 10)
	}
	return p.producer.Publish(ctx, p.topic, []byte(key), e)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher drops every event. Used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, models.EngineEvent) error { return nil }
func (NopEventPublisher) Close() error                                           { return nil }

func stampEvent(e *models.EngineEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
