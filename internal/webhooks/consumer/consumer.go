package consumer

import (
	"context"

	"sync-server/internal/clients/kafka"
	"sync-server/internal/observability"
	"sync-server/internal/webhooks/processor"
	"sync-server/internal/workers"
)

// dispatchProcessor adapts the webhook processor to the worker pool interface
type dispatchProcessor struct {
	processor *processor.WebhookProcessor
}

func (d *dispatchProcessor) Process(ctx context.Context, message workers.WebhookMessage) error {
	return d.processor.HandleMessage(ctx, message)
}

func (d *dispatchProcessor) Name() string {
	return "webhook-dispatch"
}

// Consumer reads webhook messages off the bus and fans them out to a worker
// pool. Messages are committed on submission; a dispatch that later fails is
// recovered through the replay endpoint since the event is already stored.
type Consumer struct {
	kafkaConsumer *kafka.Consumer
	pool          workers.WorkerPool
	logger        *observability.Logger
}

func New(kafkaConsumer *kafka.Consumer, webhookProcessor *processor.WebhookProcessor, numWorkers int, logger *observability.Logger) *Consumer {
	poolConfig := workers.DefaultWorkerPoolConfig()
	if numWorkers > 0 {
		poolConfig.NumWorkers = numWorkers
	}

	return &Consumer{
		kafkaConsumer: kafkaConsumer,
		pool:          workers.NewWorkerPool(poolConfig, &dispatchProcessor{processor: webhookProcessor}, logger),
		logger:        logger,
	}
}

// Start runs the consume loop until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.pool.Start(ctx); err != nil {
		return err
	}

	return c.kafkaConsumer.ConsumeWebhooks(ctx, func(msgCtx context.Context, message kafka.WebhookMessage) error {
		return c.pool.Submit(msgCtx, message)
	})
}

// Stop drains in-flight messages and closes the reader
func (c *Consumer) Stop(ctx context.Context) {
	if err := c.pool.Drain(ctx); err != nil {
		c.logger.Error(ctx, "failed to drain webhook worker pool", err)
	}
	if err := c.kafkaConsumer.Close(); err != nil {
		c.logger.Error(ctx, "failed to close kafka consumer", err)
	}
}
