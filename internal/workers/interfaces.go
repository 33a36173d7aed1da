package workers

import (
	"context"

	kafka "sync-server/internal/clients/kafka"
)

// WebhookMessage is an alias for the Kafka webhook message type.
// This allows worker code to reference WebhookMessage without importing kafka directly.
type WebhookMessage = kafka.WebhookMessage

// MessageProcessor defines the interface for processing webhook messages.
// Implementations should be idempotent as messages may be redelivered.
type MessageProcessor interface {
	// Process handles a single webhook message.
	Process(ctx context.Context, message WebhookMessage) error

	// Name returns the processor name for logging.
	Name() string
}

// WorkerPool defines the interface for managing a pool of message processing workers.
type WorkerPool interface {
	// Start initializes the worker pool with N workers.
	Start(ctx context.Context) error

	// Submit adds a message to the worker pool for processing.
	// Blocks if the queue is full.
	Submit(ctx context.Context, message WebhookMessage) error

	// Drain stops accepting new messages and waits for in-flight messages to complete.
	Drain(ctx context.Context) error

	// Stop immediately stops all workers.
	Stop()
}
