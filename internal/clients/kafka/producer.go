package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"sync-server/internal/observability"

	"github.com/segmentio/kafka-go"
)

// Producer publishes webhook events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger *observability.Logger
}

// ProducerConfig contains configuration for Kafka producer
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer creates a new Kafka producer
func NewProducer(config ProducerConfig, logger *observability.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(config.Brokers...),
		Topic:    config.Topic,
		Balancer: &kafka.LeastBytes{},
		Async:    false,
		// Compression for better throughput
		Compression: kafka.Snappy,
		BatchSize:   100,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// WebhookMessage is the wire format for a persisted webhook event reference.
// Only the event id travels on the bus; consumers reload the payload from
// the database so replay and live delivery share one path.
type WebhookMessage struct {
	EventID   string `json:"event_id"`
	Platform  string `json:"platform"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// PublishWebhook publishes one webhook event reference to Kafka
func (p *Producer) PublishWebhook(ctx context.Context, message WebhookMessage) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: message.EventID},
		observability.Field{Key: "platform", Value: message.Platform},
	)

	messageBytes, err := json.Marshal(message)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal webhook message", err)
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	msg := kafka.Message{
		// Partition by platform so per-platform ordering holds
		Key:   []byte(message.Platform),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "platform", Value: []byte(message.Platform)},
			{Key: "type", Value: []byte(message.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write message to kafka", err)
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Info(ctx, "published webhook event to kafka")
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
