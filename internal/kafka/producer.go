package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
)

// EventProducer publishes challenge events to Kafka
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewEventProducer connects a synchronous producer to the events topic
func NewEventProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*EventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewEventProducerWith(producer, cfg.EventsTopic, logger), nil
}

// NewEventProducerWith wraps an existing producer
func NewEventProducerWith(producer sarama.SyncProducer, topic string, logger *slog.Logger) *EventProducer {
	return &EventProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish sends an event keyed by challenge so one challenge's events stay
// ordered on a single partition
func (p *EventProducer) Publish(_ context.Context, event domain.ChallengeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Challenge.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}

	p.logger.Debug("published challenge event",
		"type", event.Type,
		"challenge_id", event.Challenge.ID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (p *EventProducer) Close() error {
	return p.producer.Close()
}
