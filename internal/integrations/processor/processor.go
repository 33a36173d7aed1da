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

// IntegrationStore defines the database operations required by IntegrationProcessor
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, params store.CreateIntegrationParams) (store.Integration, error)
	GetIntegrationByID(ctx context.Context, id uuid.UUID) (store.Integration, error)
	GetIntegrationByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider string) (store.Integration, error)
	ListActiveIntegrationsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Integration, error)
	SetIntegrationActive(ctx context.Context, id uuid.UUID, isActive bool) error
	ListCampaignsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Campaign, error)
	ListMetrics(ctx context.Context, tenantID uuid.UUID, since, until time.Time) ([]store.Metric, error)
}

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationExists   = errors.New("integration already exists for this provider")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrInvalidCredentials  = errors.New("credentials were rejected by the platform")
)

type IntegrationProcessor struct {
	store    IntegrationStore
	registry *platforms.Registry
	logger   *observability.Logger
}

func New(store IntegrationStore, registry *platforms.Registry, logger *observability.Logger) IntegrationProcessor {
	return IntegrationProcessor{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// CreateIntegration connects a tenant to a platform. Credentials are
// validated against the platform before anything is written, so a bad
// token never produces an integration that fails its first sync.
func (p *IntegrationProcessor) CreateIntegration(
	ctx context.Context, tenantID uuid.UUID, provider string, credentials, config store.JSONB,
) (store.Integration, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "tenant_id", Value: tenantID},
		observability.Field{Key: "platform", Value: provider},
	)

	adapter, err := p.registry.Get(provider)
	if err != nil {
		return store.Integration{}, ErrUnsupportedProvider
	}

	_, err = p.store.GetIntegrationByTenantAndProvider(ctx, tenantID, provider)
	if err == nil {
		return store.Integration{}, ErrIntegrationExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		p.logger.Error(ctx, "failed to check existing integration", err)
		return store.Integration{}, fmt.Errorf("failed to check existing integration: %w", err)
	}

	// Credentials may be empty when the tenant will connect via OAuth later.
	if len(credentials) > 0 {
		creds := platforms.Credentials{}
		for k, v := range credentials {
			creds[k] = v
		}
		valid, err := adapter.ValidateCredentials(ctx, creds)
		if err != nil {
			p.logger.InfoWithError(ctx, "credential validation failed", err)
			return store.Integration{}, ErrInvalidCredentials
		}
		if !valid {
			return store.Integration{}, ErrInvalidCredentials
		}
	}

	integration, err := p.store.CreateIntegration(ctx, store.CreateIntegrationParams{
		TenantID:    tenantID,
		Provider:    provider,
		Credentials: credentials,
		Config:      config,
		IsActive:    len(credentials) > 0,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to create integration", err)
		return store.Integration{}, fmt.Errorf("failed to create integration: %w", err)
	}

	p.logger.Info(ctx, "integration created")
	return integration, nil
}

// ListIntegrations returns the tenant's active integrations.
func (p *IntegrationProcessor) ListIntegrations(ctx context.Context, tenantID uuid.UUID) ([]store.Integration, error) {
	integrations, err := p.store.ListActiveIntegrationsByTenant(ctx, tenantID)
	if err != nil {
		p.logger.Error(ctx, "failed to list integrations", err)
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// SetActive enables or disables an integration. Disabled integrations are
// skipped by both manual and scheduled syncs.
func (p *IntegrationProcessor) SetActive(ctx context.Context, tenantID, integrationID uuid.UUID, active bool) error {
	integration, err := p.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIntegrationNotFound
		}
		p.logger.Error(ctx, "failed to load integration", err)
		return fmt.Errorf("failed to load integration: %w", err)
	}
	if integration.TenantID != tenantID {
		return ErrIntegrationNotFound
	}

	if err := p.store.SetIntegrationActive(ctx, integrationID, active); err != nil {
		p.logger.Error(ctx, "failed to update integration", err)
		return fmt.Errorf("failed to update integration: %w", err)
	}
	return nil
}

// ListCampaigns returns all synced campaigns for the tenant.
func (p *IntegrationProcessor) ListCampaigns(ctx context.Context, tenantID uuid.UUID) ([]store.Campaign, error) {
	campaigns, err := p.store.ListCampaignsByTenant(ctx, tenantID)
	if err != nil {
		p.logger.Error(ctx, "failed to list campaigns", err)
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// ListMetrics returns the tenant's metrics in [since, until). A zero range
// defaults to the trailing 30 days.
func (p *IntegrationProcessor) ListMetrics(ctx context.Context, tenantID uuid.UUID, since, until time.Time) ([]store.Metric, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	if since.IsZero() {
		since = until.AddDate(0, 0, -30)
	}

	metrics, err := p.store.ListMetrics(ctx, tenantID, since, until)
	if err != nil {
		p.logger.Error(ctx, "failed to list metrics", err)
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}
