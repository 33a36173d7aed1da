package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"

	"github.com/google/uuid"
)

// SyncStore defines the database operations required by SyncProcessor
type SyncStore interface {
	GetIntegrationByID(ctx context.Context, id uuid.UUID) (store.Integration, error)
	GetIntegrationByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider string) (store.Integration, error)
	ListActiveIntegrationsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Integration, error)
	UpdateIntegrationStatus(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error
	UpsertCampaign(ctx context.Context, params store.UpsertCampaignParams) (store.Campaign, error)
	UpsertMetric(ctx context.Context, params store.UpsertMetricParams) (store.Metric, error)
	CreateSyncHistory(ctx context.Context, params store.CreateSyncHistoryParams) (store.SyncHistory, error)
	UpsertOpenNotification(ctx context.Context, params store.UpsertNotificationParams) (store.IntegrationNotification, error)
	ResolveOpenNotification(ctx context.Context, tenantID uuid.UUID, platform string) error
	ListSyncHistory(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]store.SyncHistory, error)
	ListNotificationsByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.IntegrationNotification, error)
}

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationInactive = errors.New("integration is not active")
)

// SyncResult is the outcome of one platform sync. Sync entry points always
// return a result; failures are reported in the result, never panicked or
// propagated as errors.
type SyncResult struct {
	Platform  string                 `json:"platform"`
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type SyncProcessor struct {
	store     SyncStore
	registry  *platforms.Registry
	webAppURI string
	logger    *observability.Logger
}

func New(store SyncStore, registry *platforms.Registry, webAppURI string, logger *observability.Logger) SyncProcessor {
	return SyncProcessor{
		store:     store,
		registry:  registry,
		webAppURI: webAppURI,
		logger:    logger,
	}
}

// SyncPlatform syncs one tenant's integration for one platform. It never
// returns an error; every failure path ends in a failed SyncResult plus an
// error history row and an open notification.
func (p *SyncProcessor) SyncPlatform(ctx context.Context, tenantID uuid.UUID, platform string, dr platforms.DateRange) SyncResult {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tenant_id", Value: tenantID.String()},
		observability.Field{Key: "platform", Value: platform},
	)

	integration, err := p.store.GetIntegrationByTenantAndProvider(ctx, tenantID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failedResult(platform, ErrIntegrationNotFound.Error())
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return failedResult(platform, "failed to load integration")
	}
	return p.syncIntegration(ctx, integration, dr)
}

// SyncIntegrationByID syncs one integration addressed directly, for the
// manual sync endpoint and the scheduler.
func (p *SyncProcessor) SyncIntegrationByID(ctx context.Context, integrationID uuid.UUID, dr platforms.DateRange) (SyncResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integrationID.String()},
	)

	integration, err := p.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SyncResult{}, ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return SyncResult{}, err
	}
	return p.syncIntegration(ctx, integration, dr), nil
}

// SyncAllPlatforms syncs every active integration the tenant has. Each
// integration is isolated: one platform failing never stops the others.
func (p *SyncProcessor) SyncAllPlatforms(ctx context.Context, tenantID uuid.UUID, dr platforms.DateRange) ([]SyncResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tenant_id", Value: tenantID.String()},
	)

	integrations, err := p.store.ListActiveIntegrationsByTenant(ctx, tenantID)
	if err != nil {
		p.logger.Error(ctx, "failed to list active integrations", err)
		return nil, err
	}

	results := make([]SyncResult, 0, len(integrations))
	for _, integration := range integrations {
		results = append(results, p.syncIntegration(ctx, integration, dr))
	}
	return results, nil
}

// syncIntegration runs one full fetch-normalize-upsert pass. A zero date
// range falls back to the default trailing window.
func (p *SyncProcessor) syncIntegration(ctx context.Context, integration store.Integration, dr platforms.DateRange) SyncResult {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "integration_id", Value: integration.ID.String()},
		observability.Field{Key: "platform", Value: integration.Provider},
	)

	if !integration.IsActive {
		p.logger.Info(ctx, "skipping inactive integration")
		return failedResult(integration.Provider, ErrIntegrationInactive.Error())
	}

	adapter, err := p.registry.Get(integration.Provider)
	if err != nil {
		return p.recordFailure(ctx, integration, "unsupported platform", err)
	}

	creds := adapterCredentials(integration)
	window := dr
	if window.Since.IsZero() || window.Until.IsZero() {
		window = platforms.DefaultDateRange()
	}

	rawCampaigns, err := adapter.GetCampaigns(ctx, creds, window)
	if err != nil {
		return p.recordFailure(ctx, integration, "failed to fetch campaigns", err)
	}

	rawInsights, err := adapter.GetInsights(ctx, creds, window)
	if err != nil {
		return p.recordFailure(ctx, integration, "failed to fetch insights", err)
	}

	campaignIDs := make(map[string]uuid.UUID)
	campaignCount := 0
	skipped := 0
	for _, raw := range rawCampaigns {
		fields, err := normalizeCampaign(raw)
		if err != nil {
			skipped++
			continue
		}
		campaign, err := p.store.UpsertCampaign(ctx, store.UpsertCampaignParams{
			TenantID:      integration.TenantID,
			IntegrationID: integration.ID,
			Platform:      integration.Provider,
			ExternalID:    fields.ExternalID,
			Name:          fields.Name,
			Status:        fields.Status,
			Objective:     fields.Objective,
			Budget:        fields.Budget,
			Currency:      fields.Currency,
			StartDate:     fields.StartDate,
			EndDate:       fields.EndDate,
		})
		if err != nil {
			return p.recordFailure(ctx, integration, "failed to upsert campaign", err)
		}
		campaignIDs[campaign.ExternalID] = campaign.ID
		campaignCount++
	}

	metricCount := 0
	for _, raw := range rawInsights {
		fields, err := normalizeInsight(raw)
		if err != nil {
			skipped++
			continue
		}
		var campaignID *uuid.UUID
		if fields.ExternalCampaignID != "" {
			if id, ok := campaignIDs[fields.ExternalCampaignID]; ok {
				campaignID = &id
			}
		}
		_, err = p.store.UpsertMetric(ctx, store.UpsertMetricParams{
			TenantID:       integration.TenantID,
			CampaignID:     campaignID,
			Date:           fields.Date,
			Platform:       integration.Provider,
			Source:         fields.Source,
			Impressions:    fields.Impressions,
			Clicks:         fields.Clicks,
			Conversions:    fields.Conversions,
			Spend:          fields.Spend,
			Revenue:        fields.Revenue,
			Orders:         fields.Orders,
			OrganicTraffic: fields.OrganicTraffic,
			Metadata:       fields.Metadata,
		})
		if err != nil {
			return p.recordFailure(ctx, integration, "failed to upsert metric", err)
		}
		metricCount++
	}

	data := store.JSONB{
		"campaigns": campaignCount,
		"metrics":   metricCount,
		"skipped":   skipped,
	}
	now := time.Now().UTC()

	if err := p.store.UpdateIntegrationStatus(ctx, integration.ID, store.IntegrationStatusActive, &now); err != nil {
		p.logger.Error(ctx, "failed to mark integration active", err)
	}
	if _, err := p.store.CreateSyncHistory(ctx, store.CreateSyncHistoryParams{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Platform:      integration.Provider,
		Status:        store.SyncStatusSuccess,
		Data:          data,
	}); err != nil {
		p.logger.Error(ctx, "failed to record sync history", err)
	}
	if err := p.store.ResolveOpenNotification(ctx, integration.TenantID, integration.Provider); err != nil {
		p.logger.Error(ctx, "failed to resolve notification", err)
	}

	p.logger.Info(ctx, "integration synced")
	return SyncResult{
		Platform:  integration.Provider,
		Success:   true,
		Data:      data,
		Timestamp: now,
	}
}

// recordFailure marks the integration errored, appends an error history row
// and raises (or refreshes) the tenant's open notification. last_sync_at is
// left untouched so the scheduler retries on the next pass.
func (p *SyncProcessor) recordFailure(ctx context.Context, integration store.Integration, reason string, cause error) SyncResult {
	p.logger.Error(ctx, reason, cause)
	message := fmt.Sprintf("%s: %v", reason, cause)

	if err := p.store.UpdateIntegrationStatus(ctx, integration.ID, store.IntegrationStatusError, nil); err != nil {
		p.logger.Error(ctx, "failed to mark integration errored", err)
	}
	if _, err := p.store.CreateSyncHistory(ctx, store.CreateSyncHistoryParams{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Platform:      integration.Provider,
		Status:        store.SyncStatusError,
		Error:         &message,
	}); err != nil {
		p.logger.Error(ctx, "failed to record sync history", err)
	}
	if _, err := p.store.UpsertOpenNotification(ctx, store.UpsertNotificationParams{
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Platform:      integration.Provider,
		Title:         fmt.Sprintf("%s sync failing", platformDisplayName(integration.Provider)),
		Reason:        message,
		ActionURL:     p.webAppURI + "/integrations",
		Severity:      store.SeverityCritical,
	}); err != nil {
		p.logger.Error(ctx, "failed to upsert notification", err)
	}

	return failedResult(integration.Provider, message)
}

// GetSyncHistory returns recent sync attempts for one integration
func (p *SyncProcessor) GetSyncHistory(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]store.SyncHistory, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	history, err := p.store.ListSyncHistory(ctx, tenantID, integrationID, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list sync history", err)
		return nil, err
	}
	if history == nil {
		history = []store.SyncHistory{}
	}
	return history, nil
}

// GetNotifications returns recent integration notifications for a tenant
func (p *SyncProcessor) GetNotifications(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.IntegrationNotification, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	notifications, err := p.store.ListNotificationsByTenant(ctx, tenantID, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list notifications", err)
		return nil, err
	}
	if notifications == nil {
		notifications = []store.IntegrationNotification{}
	}
	return notifications, nil
}

// adapterCredentials merges stored credentials with the integration config.
// OAuth token payloads land in config, so config wins on key conflicts.
func adapterCredentials(integration store.Integration) platforms.Credentials {
	creds := make(platforms.Credentials, len(integration.Credentials)+len(integration.Config))
	for k, v := range integration.Credentials {
		creds[k] = v
	}
	for k, v := range integration.Config {
		creds[k] = v
	}
	return creds
}

func failedResult(platform, message string) SyncResult {
	return SyncResult{
		Platform:  platform,
		Success:   false,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}

func platformDisplayName(platform string) string {
	switch platform {
	case store.PlatformFacebook:
		return "Facebook"
	case store.PlatformTikTok:
		return "TikTok"
	case store.PlatformLine:
		return "LINE"
	case store.PlatformShopee:
		return "Shopee"
	case store.PlatformGoogleAnalytics:
		return "Google Analytics"
	default:
		return platform
	}
}
