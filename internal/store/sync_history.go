package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateSyncHistoryParams represents parameters for recording a sync attempt
type CreateSyncHistoryParams struct {
	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Platform      string
	Status        string
	Data          JSONB
	Error         *string
}

const sqlCreateSyncHistory = `
INSERT INTO sync_history (tenant_id, integration_id, platform, status, data, error)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, tenant_id, integration_id, platform, status, data, error, synced_at
`

// CreateSyncHistory appends one audit row per sync attempt. Rows are never
// updated.
func (s *Store) CreateSyncHistory(ctx context.Context, params CreateSyncHistoryParams) (SyncHistory, error) {
	var history SyncHistory
	err := s.db.GetContext(ctx, &history, sqlCreateSyncHistory,
		params.TenantID,
		params.IntegrationID,
		params.Platform,
		params.Status,
		params.Data,
		params.Error)
	if err != nil {
		s.logger.Error(ctx, "failed to create sync history", err)
		return SyncHistory{}, fmt.Errorf("failed to create sync history: %w", err)
	}
	return history, nil
}

const sqlListSyncHistory = `
SELECT id, tenant_id, integration_id, platform, status, data, error, synced_at
FROM sync_history
WHERE tenant_id = $1 AND integration_id = $2
ORDER BY synced_at DESC
LIMIT $3
`

// ListSyncHistory retrieves the latest sync attempts for one integration
func (s *Store) ListSyncHistory(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]SyncHistory, error) {
	var history []SyncHistory
	err := s.db.SelectContext(ctx, &history, sqlListSyncHistory, tenantID, integrationID, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list sync history", err)
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	return history, nil
}
