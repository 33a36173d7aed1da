package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateWebhookEventParams represents parameters for persisting an inbound event
type CreateWebhookEventParams struct {
	TenantID  *uuid.UUID
	Platform  string
	Type      string
	Data      JSONB
	Signature *string
}

const sqlCreateWebhookEvent = `
INSERT INTO webhook_events (tenant_id, platform, type, data, signature)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, tenant_id, platform, type, data, signature, received_at
`

// CreateWebhookEvent persists one raw inbound event. Events are append-only;
// persistence happens before dispatch so failed processing stays replayable.
func (s *Store) CreateWebhookEvent(ctx context.Context, params CreateWebhookEventParams) (WebhookEvent, error) {
	var event WebhookEvent
	err := s.db.GetContext(ctx, &event, sqlCreateWebhookEvent,
		params.TenantID,
		params.Platform,
		params.Type,
		params.Data,
		params.Signature)
	if err != nil {
		s.logger.Error(ctx, "failed to create webhook event", err)
		return WebhookEvent{}, fmt.Errorf("failed to create webhook event: %w", err)
	}
	return event, nil
}

const sqlGetWebhookEventByID = `
SELECT id, tenant_id, platform, type, data, signature, received_at
FROM webhook_events
WHERE id = $1
`

// GetWebhookEventByID retrieves a stored event for replay or inspection
func (s *Store) GetWebhookEventByID(ctx context.Context, id uuid.UUID) (WebhookEvent, error) {
	var event WebhookEvent
	err := s.db.GetContext(ctx, &event, sqlGetWebhookEventByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WebhookEvent{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get webhook event by id", err)
		return WebhookEvent{}, fmt.Errorf("failed to get webhook event by id: %w", err)
	}
	return event, nil
}

// ListWebhookEventsParams represents filters for listing stored events
type ListWebhookEventsParams struct {
	TenantID *uuid.UUID
	Platform *string
	Limit    int
	Offset   int
}

// ListWebhookEvents retrieves stored events, newest first, with optional
// tenant and platform filters
func (s *Store) ListWebhookEvents(ctx context.Context, params ListWebhookEventsParams) ([]WebhookEvent, error) {
	query := `SELECT id, tenant_id, platform, type, data, signature, received_at
	          FROM webhook_events WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if params.TenantID != nil {
		argCount++
		query += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, *params.TenantID)
	}
	if params.Platform != nil {
		argCount++
		query += fmt.Sprintf(" AND platform = $%d", argCount)
		args = append(args, *params.Platform)
	}

	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
	args = append(args, params.Limit, params.Offset)

	var events []WebhookEvent
	err := s.db.SelectContext(ctx, &events, query, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to list webhook events", err)
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return events, nil
}

const sqlDeleteWebhookEvent = `
DELETE FROM webhook_events
WHERE id = $1
`

// DeleteWebhookEvent removes a stored event
func (s *Store) DeleteWebhookEvent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteWebhookEvent, id)
	if err != nil {
		s.logger.Error(ctx, "failed to delete webhook event", err)
		return fmt.Errorf("failed to delete webhook event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
