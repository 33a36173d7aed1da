package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateIntegrationParams represents parameters for creating an integration
type CreateIntegrationParams struct {
	TenantID    uuid.UUID
	Provider    string
	Credentials JSONB
	Config      JSONB
	IsActive    bool
}

const sqlCreateIntegration = `
INSERT INTO integrations (tenant_id, provider, credentials, config, is_active, status)
VALUES ($1, $2, $3, $4, $5, 'active')
RETURNING id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
`

// CreateIntegration creates a new integration for a tenant
func (s *Store) CreateIntegration(ctx context.Context, params CreateIntegrationParams) (Integration, error) {
	var integration Integration
	err := s.db.GetContext(ctx, &integration, sqlCreateIntegration,
		params.TenantID,
		params.Provider,
		params.Credentials,
		params.Config,
		params.IsActive)
	if err != nil {
		s.logger.Error(ctx, "failed to create integration", err)
		return Integration{}, fmt.Errorf("failed to create integration: %w", err)
	}
	return integration, nil
}

const sqlGetIntegrationByID = `
SELECT id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
FROM integrations
WHERE id = $1
`

// GetIntegrationByID retrieves an integration by id
func (s *Store) GetIntegrationByID(ctx context.Context, id uuid.UUID) (Integration, error) {
	var integration Integration
	err := s.db.GetContext(ctx, &integration, sqlGetIntegrationByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Integration{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get integration by id", err)
		return Integration{}, fmt.Errorf("failed to get integration by id: %w", err)
	}
	return integration, nil
}

const sqlGetIntegrationByTenantAndProvider = `
SELECT id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
FROM integrations
WHERE tenant_id = $1 AND provider = $2
`

// GetIntegrationByTenantAndProvider retrieves a tenant's integration for one platform
func (s *Store) GetIntegrationByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider string) (Integration, error) {
	var integration Integration
	err := s.db.GetContext(ctx, &integration, sqlGetIntegrationByTenantAndProvider, tenantID, provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Integration{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get integration by tenant and provider", err)
		return Integration{}, fmt.Errorf("failed to get integration by tenant and provider: %w", err)
	}
	return integration, nil
}

const sqlListActiveIntegrationsByTenant = `
SELECT id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
FROM integrations
WHERE tenant_id = $1 AND is_active = true
ORDER BY provider
`

// ListActiveIntegrationsByTenant retrieves a tenant's active integrations
func (s *Store) ListActiveIntegrationsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Integration, error) {
	var integrations []Integration
	err := s.db.SelectContext(ctx, &integrations, sqlListActiveIntegrationsByTenant, tenantID)
	if err != nil {
		s.logger.Error(ctx, "failed to list active integrations", err)
		return nil, fmt.Errorf("failed to list active integrations: %w", err)
	}
	return integrations, nil
}

const sqlListDueIntegrations = `
SELECT id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
FROM integrations
WHERE is_active = true AND (last_sync_at IS NULL OR last_sync_at < $1)
ORDER BY last_sync_at ASC NULLS FIRST
`

// ListDueIntegrations retrieves integrations whose last sync is older than the
// cutoff (or that have never synced). Used by the scheduler tick.
func (s *Store) ListDueIntegrations(ctx context.Context, cutoff time.Time) ([]Integration, error) {
	var integrations []Integration
	err := s.db.SelectContext(ctx, &integrations, sqlListDueIntegrations, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to list due integrations", err)
		return nil, fmt.Errorf("failed to list due integrations: %w", err)
	}
	return integrations, nil
}

const sqlUpdateIntegrationStatus = `
UPDATE integrations
SET status = $2,
    last_sync_at = COALESCE($3, last_sync_at),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// UpdateIntegrationStatus updates an integration's health state and, when
// provided, its last sync timestamp
func (s *Store) UpdateIntegrationStatus(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, sqlUpdateIntegrationStatus, id, status, lastSyncAt)
	if err != nil {
		s.logger.Error(ctx, "failed to update integration status", err)
		return fmt.Errorf("failed to update integration status: %w", err)
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

const sqlUpdateIntegrationConfig = `
UPDATE integrations
SET config = $2,
    is_active = $3,
    last_sync_at = COALESCE($4, last_sync_at),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
`

// UpdateIntegrationConfig replaces an integration's config blob. Callers merge
// token payloads into the existing config before writing.
func (s *Store) UpdateIntegrationConfig(ctx context.Context, id uuid.UUID, config JSONB, isActive bool, lastSyncAt *time.Time) (Integration, error) {
	var integration Integration
	err := s.db.GetContext(ctx, &integration, sqlUpdateIntegrationConfig, id, config, isActive, lastSyncAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Integration{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update integration config", err)
		return Integration{}, fmt.Errorf("failed to update integration config: %w", err)
	}
	return integration, nil
}

const sqlGetIntegrationByConfigValue = `
SELECT id, tenant_id, provider, credentials, config, is_active, status, last_sync_at, created_at, updated_at
FROM integrations
WHERE provider = $1 AND config->>$2 = $3
LIMIT 1
`

// GetIntegrationByConfigValue finds the integration whose config carries the
// given value, e.g. the Shopee integration for a shop_id arriving on a
// webhook. Webhook payloads identify the external account, not the tenant.
func (s *Store) GetIntegrationByConfigValue(ctx context.Context, provider, key, value string) (Integration, error) {
	var integration Integration
	err := s.db.GetContext(ctx, &integration, sqlGetIntegrationByConfigValue, provider, key, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Integration{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get integration by config value", err)
		return Integration{}, fmt.Errorf("failed to get integration by config value: %w", err)
	}
	return integration, nil
}

const sqlSetIntegrationActive = `
UPDATE integrations
SET is_active = $2, updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// SetIntegrationActive soft-enables or soft-disables an integration
func (s *Store) SetIntegrationActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	res, err := s.db.ExecContext(ctx, sqlSetIntegrationActive, id, isActive)
	if err != nil {
		s.logger.Error(ctx, "failed to set integration active", err)
		return fmt.Errorf("failed to set integration active: %w", err)
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
