package processor

import (
	"context"
	"fmt"

	"sync-server/internal/observability"
	"sync-server/internal/store"
)

// EventHandler processes one persisted webhook event
type EventHandler func(ctx context.Context, event store.WebhookEvent) error

// Dispatcher routes persisted webhook events to handlers keyed by
// (platform, event type). A platform may register a catch-all handler under
// "*". Events nobody handles are logged and acknowledged so platforms do not
// retry them forever.
type Dispatcher struct {
	handlers map[string]map[string]EventHandler
	logger   *observability.Logger
}

func NewDispatcher(logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger,
	}
}

// Register adds a handler for one platform and event type. Use "*" as the
// event type for a platform-wide catch-all.
func (d *Dispatcher) Register(platform, eventType string, handler EventHandler) {
	if d.handlers[platform] == nil {
		d.handlers[platform] = make(map[string]EventHandler)
	}
	d.handlers[platform][eventType] = handler
}

// Dispatch routes one event. Handler errors propagate so callers decide
// whether to retry.
func (d *Dispatcher) Dispatch(ctx context.Context, event store.WebhookEvent) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: event.ID.String()},
		observability.Field{Key: "platform", Value: event.Platform},
		observability.Field{Key: "event_type", Value: event.Type},
	)

	byType := d.handlers[event.Platform]
	handler, ok := byType[event.Type]
	if !ok {
		handler, ok = byType["*"]
	}
	if !ok {
		d.logger.Info(ctx, "no handler registered for webhook event, acknowledging")
		return nil
	}

	if err := handler(ctx, event); err != nil {
		return fmt.Errorf("webhook handler for %s/%s failed: %w", event.Platform, event.Type, err)
	}
	d.logger.Info(ctx, "webhook event dispatched")
	return nil
}
