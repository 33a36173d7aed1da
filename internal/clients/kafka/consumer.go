package kafka

import (
	"context"
	"encoding/json"

	"sync-server/internal/observability"

	"github.com/segmentio/kafka-go"
)

// Consumer reads webhook event references from Kafka
type Consumer struct {
	reader *kafka.Reader
	logger *observability.Logger
}

// ConsumerConfig contains configuration for Kafka consumer
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig, logger *observability.Logger) *Consumer {
	if config.MinBytes == 0 {
		config.MinBytes = 10e3 // 10KB
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 10e6 // 10MB
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		StartOffset: kafka.FirstOffset,
		// Manual commit after successful processing
		CommitInterval: 0,
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

// ConsumeWebhooks continuously consumes webhook messages and hands them to
// the handler. Messages are committed only after the handler succeeds, so a
// failed dispatch is redelivered.
func (c *Consumer) ConsumeWebhooks(ctx context.Context, handler func(context.Context, WebhookMessage) error) error {
	c.logger.Info(ctx, "starting kafka webhook consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "stopping kafka webhook consumer")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error(ctx, "failed to fetch message from kafka", err)
				continue
			}

			var message WebhookMessage
			if err := json.Unmarshal(msg.Value, &message); err != nil {
				c.logger.Error(ctx, "failed to unmarshal webhook message", err)
				// Commit to skip the poison message
				c.reader.CommitMessages(ctx, msg)
				continue
			}

			msgCtx := observability.WithFields(ctx,
				observability.Field{Key: "event_id", Value: message.EventID},
				observability.Field{Key: "platform", Value: message.Platform},
				observability.Field{Key: "partition", Value: msg.Partition},
				observability.Field{Key: "offset", Value: msg.Offset},
			)

			if err := handler(msgCtx, message); err != nil {
				c.logger.Error(msgCtx, "failed to process webhook message", err)
				continue
			}

			if err := c.reader.CommitMessages(msgCtx, msg); err != nil {
				c.logger.Error(msgCtx, "failed to commit message", err)
			}
		}
	}
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
