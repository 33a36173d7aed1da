package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sync-server/internal/clients/kafka"
	"sync-server/internal/observability"
	"sync-server/internal/store"

	"github.com/google/uuid"
)

// WebhookStore defines the database operations required by WebhookProcessor
type WebhookStore interface {
	CreateWebhookEvent(ctx context.Context, params store.CreateWebhookEventParams) (store.WebhookEvent, error)
	GetWebhookEventByID(ctx context.Context, id uuid.UUID) (store.WebhookEvent, error)
	ListWebhookEvents(ctx context.Context, params store.ListWebhookEventsParams) ([]store.WebhookEvent, error)
	DeleteWebhookEvent(ctx context.Context, id uuid.UUID) error
	GetIntegrationByConfigValue(ctx context.Context, provider, key, value string) (store.Integration, error)
}

// Publisher publishes persisted event references onto the message bus
type Publisher interface {
	PublishWebhook(ctx context.Context, message kafka.WebhookMessage) error
}

var (
	ErrEventNotFound   = errors.New("webhook event not found")
	ErrInvalidPayload  = errors.New("invalid webhook payload")
	ErrUnknownPlatform = errors.New("unknown webhook platform")
)

// IngestParams carries one raw inbound webhook request
type IngestParams struct {
	Platform   string
	Body       []byte
	Signature  string
	RequestURL string
}

// WebhookProcessor verifies, persists and dispatches inbound platform
// webhooks. Persistence always precedes dispatch so every accepted event is
// replayable regardless of what processing does with it.
type WebhookProcessor struct {
	store      WebhookStore
	dispatcher *Dispatcher
	publisher  Publisher
	secrets    map[string]string
	logger     *observability.Logger
}

// New creates a WebhookProcessor. publisher may be nil, in which case events
// are dispatched in-process right after persistence.
func New(store WebhookStore, dispatcher *Dispatcher, publisher Publisher, secrets map[string]string, logger *observability.Logger) WebhookProcessor {
	return WebhookProcessor{
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		secrets:    secrets,
		logger:     logger,
	}
}

// IngestWebhook handles one inbound request: verify the signature, persist
// the event, then hand it off for processing. Signature failures reject the
// request before anything is stored.
func (p *WebhookProcessor) IngestWebhook(ctx context.Context, params IngestParams) (store.WebhookEvent, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "platform", Value: params.Platform},
	)

	if !knownPlatform(params.Platform) {
		return store.WebhookEvent{}, ErrUnknownPlatform
	}

	secret := p.secrets[params.Platform]
	if secret == "" && params.Platform != store.PlatformTikTok {
		p.logger.Warn(ctx, "no webhook secret configured, accepting unverified event")
	}
	if err := VerifySignature(params.Platform, secret, params.RequestURL, params.Body, params.Signature); err != nil {
		p.logger.Warn(ctx, "webhook signature verification failed")
		return store.WebhookEvent{}, err
	}

	payload := make(store.JSONB)
	if err := json.Unmarshal(params.Body, &payload); err != nil {
		return store.WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	eventType := extractEventType(params.Platform, payload)
	tenantID := p.resolveTenant(ctx, params.Platform, payload)

	var signature *string
	if params.Signature != "" {
		signature = &params.Signature
	}

	event, err := p.store.CreateWebhookEvent(ctx, store.CreateWebhookEventParams{
		TenantID:  tenantID,
		Platform:  params.Platform,
		Type:      eventType,
		Data:      payload,
		Signature: signature,
	})
	if err != nil {
		return store.WebhookEvent{}, err
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: event.ID.String()},
		observability.Field{Key: "event_type", Value: event.Type},
	)
	p.logger.Info(ctx, "webhook event persisted")

	if p.publisher != nil {
		if err := p.publisher.PublishWebhook(ctx, kafka.WebhookMessage{
			EventID:   event.ID.String(),
			Platform:  event.Platform,
			Type:      event.Type,
			Timestamp: event.ReceivedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			// The event is stored; dispatch in-process rather than lose it
			p.logger.Error(ctx, "failed to publish webhook event, dispatching inline", err)
			if dispatchErr := p.dispatcher.Dispatch(ctx, event); dispatchErr != nil {
				p.logger.Error(ctx, "failed to dispatch webhook event", dispatchErr)
			}
		}
		return event, nil
	}

	if err := p.dispatcher.Dispatch(ctx, event); err != nil {
		// Ingestion already succeeded; processing failures are recoverable
		// via replay.
		p.logger.Error(ctx, "failed to dispatch webhook event", err)
	}
	return event, nil
}

// HandleMessage is the bus consumer callback: reload the persisted event and
// dispatch it.
func (p *WebhookProcessor) HandleMessage(ctx context.Context, message kafka.WebhookMessage) error {
	eventID, err := uuid.Parse(message.EventID)
	if err != nil {
		p.logger.Error(ctx, "discarding webhook message with malformed event id", err)
		return nil
	}

	event, err := p.store.GetWebhookEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted before the consumer got to it
			p.logger.Info(ctx, "webhook event no longer exists, skipping")
			return nil
		}
		return err
	}
	return p.dispatcher.Dispatch(ctx, event)
}

// ReplayEvent re-runs processing for one stored event synchronously
func (p *WebhookProcessor) ReplayEvent(ctx context.Context, eventID uuid.UUID) (store.WebhookEvent, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_id", Value: eventID.String()},
	)

	event, err := p.store.GetWebhookEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.WebhookEvent{}, ErrEventNotFound
		}
		return store.WebhookEvent{}, err
	}

	if err := p.dispatcher.Dispatch(ctx, event); err != nil {
		p.logger.Error(ctx, "replay dispatch failed", err)
		return store.WebhookEvent{}, err
	}

	p.logger.Info(ctx, "webhook event replayed")
	return event, nil
}

// ListEvents returns stored events with optional tenant and platform filters
func (p *WebhookProcessor) ListEvents(ctx context.Context, tenantID *uuid.UUID, platform *string, limit, offset int) ([]store.WebhookEvent, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := p.store.ListWebhookEvents(ctx, store.ListWebhookEventsParams{
		TenantID: tenantID,
		Platform: platform,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to list webhook events", err)
		return nil, err
	}
	if events == nil {
		events = []store.WebhookEvent{}
	}
	return events, nil
}

// DeleteEvent removes one stored event
func (p *WebhookProcessor) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	err := p.store.DeleteWebhookEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrEventNotFound
		}
		p.logger.Error(ctx, "failed to delete webhook event", err)
		return err
	}
	return nil
}

// resolveTenant maps the external account reference in a payload back to the
// owning integration. Returns nil when the payload carries no usable
// reference; such events are stored tenant-less and still replayable.
func (p *WebhookProcessor) resolveTenant(ctx context.Context, platform string, payload store.JSONB) *uuid.UUID {
	var key, value string
	switch platform {
	case store.PlatformShopee:
		key = "shop_id"
		value = stringify(payload["shop_id"])
	case store.PlatformLine:
		// The bot user id LINE addresses events to
		key = "destination"
		value = stringify(payload["destination"])
	case store.PlatformFacebook:
		key = "ad_account_id"
		if entries, ok := payload["entry"].([]interface{}); ok && len(entries) > 0 {
			if entry, ok := entries[0].(map[string]interface{}); ok {
				value = stringify(entry["id"])
			}
		}
	}
	if value == "" {
		return nil
	}

	integration, err := p.store.GetIntegrationByConfigValue(ctx, platform, key, value)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error(ctx, "failed to resolve webhook tenant", err)
		}
		return nil
	}
	return &integration.TenantID
}

// extractEventType pulls the platform's event type out of the payload so
// dispatch can route on it
func extractEventType(platform string, payload store.JSONB) string {
	switch platform {
	case store.PlatformLine:
		if events, ok := payload["events"].([]interface{}); ok && len(events) > 0 {
			if event, ok := events[0].(map[string]interface{}); ok {
				if t, ok := event["type"].(string); ok && t != "" {
					return t
				}
			}
		}
	case store.PlatformShopee:
		if code := stringify(payload["code"]); code != "" {
			if name, ok := shopeeEventCodes[code]; ok {
				return name
			}
			return "code_" + code
		}
	case store.PlatformFacebook:
		if object, ok := payload["object"].(string); ok && object != "" {
			return object
		}
	case store.PlatformTikTok:
		if t, ok := payload["event"].(string); ok && t != "" {
			return t
		}
	}
	return "unknown"
}

// shopeeEventCodes maps Shopee push codes to readable event types
var shopeeEventCodes = map[string]string{
	"3": "order_status_update",
	"4": "order_tracking_update",
	"5": "shop_authorization",
}

func knownPlatform(platform string) bool {
	switch platform {
	case store.PlatformFacebook, store.PlatformTikTok, store.PlatformLine, store.PlatformShopee:
		return true
	default:
		return false
	}
}

func stringify(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return fmt.Sprintf("%.0f", n)
	case int64:
		return fmt.Sprintf("%d", n)
	default:
		return ""
	}
}
