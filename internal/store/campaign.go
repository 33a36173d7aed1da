package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertCampaignParams represents parameters for upserting a campaign
type UpsertCampaignParams struct {
	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Platform      string
	ExternalID    string
	Name          string
	Status        string
	Objective     *string
	Budget        *float64
	Currency      *string
	StartDate     *time.Time
	EndDate       *time.Time
}

const sqlUpsertCampaign = `
INSERT INTO campaigns (tenant_id, integration_id, platform, external_id, name, status, objective, budget, currency, start_date, end_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id, platform, external_id) DO UPDATE SET
    integration_id = EXCLUDED.integration_id,
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    objective = EXCLUDED.objective,
    budget = EXCLUDED.budget,
    currency = EXCLUDED.currency,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    updated_at = CURRENT_TIMESTAMP
RETURNING id, tenant_id, integration_id, platform, external_id, name, status, objective, budget, currency, start_date, end_date, created_at, updated_at
`

// UpsertCampaign creates or replaces a campaign on its
// (tenant_id, platform, external_id) identity. The incoming fields win.
func (s *Store) UpsertCampaign(ctx context.Context, params UpsertCampaignParams) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlUpsertCampaign,
		params.TenantID,
		params.IntegrationID,
		params.Platform,
		params.ExternalID,
		params.Name,
		params.Status,
		params.Objective,
		params.Budget,
		params.Currency,
		params.StartDate,
		params.EndDate)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert campaign", err)
		return Campaign{}, fmt.Errorf("failed to upsert campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignByExternalID = `
SELECT id, tenant_id, integration_id, platform, external_id, name, status, objective, budget, currency, start_date, end_date, created_at, updated_at
FROM campaigns
WHERE tenant_id = $1 AND platform = $2 AND external_id = $3
`

// GetCampaignByExternalID retrieves a campaign by its upsert identity
func (s *Store) GetCampaignByExternalID(ctx context.Context, tenantID uuid.UUID, platform, externalID string) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByExternalID, tenantID, platform, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign by external id", err)
		return Campaign{}, fmt.Errorf("failed to get campaign by external id: %w", err)
	}
	return campaign, nil
}

const sqlListCampaignsByTenant = `
SELECT id, tenant_id, integration_id, platform, external_id, name, status, objective, budget, currency, start_date, end_date, created_at, updated_at
FROM campaigns
WHERE tenant_id = $1
ORDER BY platform, external_id
`

// ListCampaignsByTenant retrieves all campaigns for a tenant
func (s *Store) ListCampaignsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Campaign, error) {
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, sqlListCampaignsByTenant, tenantID)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaigns by tenant", err)
		return nil, fmt.Errorf("failed to list campaigns by tenant: %w", err)
	}
	return campaigns, nil
}
