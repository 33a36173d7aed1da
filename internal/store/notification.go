package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// UpsertNotificationParams represents parameters for raising a notification
type UpsertNotificationParams struct {
	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Platform      string
	Title         string
	Reason        string
	ActionURL     string
	Severity      string
}

const sqlGetOpenNotification = `
SELECT id, tenant_id, integration_id, platform, title, reason, action_url, severity, status, created_at, resolved_at
FROM integration_notifications
WHERE tenant_id = $1 AND platform = $2 AND status = 'open'
`

// GetOpenNotification retrieves the open notification for (tenant, platform),
// if any
func (s *Store) GetOpenNotification(ctx context.Context, tenantID uuid.UUID, platform string) (IntegrationNotification, error) {
	var notification IntegrationNotification
	err := s.db.GetContext(ctx, &notification, sqlGetOpenNotification, tenantID, platform)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IntegrationNotification{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get open notification", err)
		return IntegrationNotification{}, fmt.Errorf("failed to get open notification: %w", err)
	}
	return notification, nil
}

const sqlUpdateOpenNotification = `
UPDATE integration_notifications
SET integration_id = $3,
    title = $4,
    reason = $5,
    action_url = $6,
    severity = $7
WHERE tenant_id = $1 AND platform = $2 AND status = 'open'
RETURNING id, tenant_id, integration_id, platform, title, reason, action_url, severity, status, created_at, resolved_at
`

const sqlInsertNotification = `
INSERT INTO integration_notifications (tenant_id, integration_id, platform, title, reason, action_url, severity, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'open')
RETURNING id, tenant_id, integration_id, platform, title, reason, action_url, severity, status, created_at, resolved_at
`

// UpsertOpenNotification raises a failure notification for (tenant, platform).
// If an open notification already exists it is updated in place so at most
// one open row exists per pair.
func (s *Store) UpsertOpenNotification(ctx context.Context, params UpsertNotificationParams) (IntegrationNotification, error) {
	var notification IntegrationNotification
	err := s.db.GetContext(ctx, &notification, sqlUpdateOpenNotification,
		params.TenantID,
		params.Platform,
		params.IntegrationID,
		params.Title,
		params.Reason,
		params.ActionURL,
		params.Severity)
	if err == nil {
		return notification, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error(ctx, "failed to update open notification", err)
		return IntegrationNotification{}, fmt.Errorf("failed to update open notification: %w", err)
	}

	err = s.db.GetContext(ctx, &notification, sqlInsertNotification,
		params.TenantID,
		params.IntegrationID,
		params.Platform,
		params.Title,
		params.Reason,
		params.ActionURL,
		params.Severity)
	if err != nil {
		s.logger.Error(ctx, "failed to insert notification", err)
		return IntegrationNotification{}, fmt.Errorf("failed to insert notification: %w", err)
	}
	return notification, nil
}

const sqlResolveOpenNotification = `
UPDATE integration_notifications
SET status = 'resolved', resolved_at = CURRENT_TIMESTAMP
WHERE tenant_id = $1 AND platform = $2 AND status = 'open'
`

// ResolveOpenNotification transitions the open notification for
// (tenant, platform) to resolved. A no-op when none is open.
func (s *Store) ResolveOpenNotification(ctx context.Context, tenantID uuid.UUID, platform string) error {
	_, err := s.db.ExecContext(ctx, sqlResolveOpenNotification, tenantID, platform)
	if err != nil {
		s.logger.Error(ctx, "failed to resolve open notification", err)
		return fmt.Errorf("failed to resolve open notification: %w", err)
	}
	return nil
}

const sqlListNotificationsByTenant = `
SELECT id, tenant_id, integration_id, platform, title, reason, action_url, severity, status, created_at, resolved_at
FROM integration_notifications
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2
`

// ListNotificationsByTenant retrieves a tenant's notifications, newest first
func (s *Store) ListNotificationsByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]IntegrationNotification, error) {
	var notifications []IntegrationNotification
	err := s.db.SelectContext(ctx, &notifications, sqlListNotificationsByTenant, tenantID, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list notifications", err)
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
