package processor

import (
	"context"
	"testing"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntegrationStore struct {
	integrations map[uuid.UUID]store.Integration
	campaigns    []store.Campaign
	metrics      []store.Metric

	created      []store.CreateIntegrationParams
	activeCalls  map[uuid.UUID]bool
	metricsRange [2]time.Time
}

func newFakeIntegrationStore() *fakeIntegrationStore {
	return &fakeIntegrationStore{
		integrations: make(map[uuid.UUID]store.Integration),
		activeCalls:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeIntegrationStore) CreateIntegration(ctx context.Context, params store.CreateIntegrationParams) (store.Integration, error) {
	f.created = append(f.created, params)
	integration := store.Integration{
		ID:          uuid.New(),
		TenantID:    params.TenantID,
		Provider:    params.Provider,
		Credentials: params.Credentials,
		Config:      params.Config,
		IsActive:    params.IsActive,
		Status:      store.IntegrationStatusActive,
	}
	f.integrations[integration.ID] = integration
	return integration, nil
}

func (f *fakeIntegrationStore) GetIntegrationByID(ctx context.Context, id uuid.UUID) (store.Integration, error) {
	integration, ok := f.integrations[id]
	if !ok {
		return store.Integration{}, store.ErrNotFound
	}
	return integration, nil
}

func (f *fakeIntegrationStore) GetIntegrationByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider string) (store.Integration, error) {
	for _, integration := range f.integrations {
		if integration.TenantID == tenantID && integration.Provider == provider {
			return integration, nil
		}
	}
	return store.Integration{}, store.ErrNotFound
}

func (f *fakeIntegrationStore) ListActiveIntegrationsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Integration, error) {
	var out []store.Integration
	for _, integration := range f.integrations {
		if integration.TenantID == tenantID && integration.IsActive {
			out = append(out, integration)
		}
	}
	return out, nil
}

func (f *fakeIntegrationStore) SetIntegrationActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	f.activeCalls[id] = isActive
	return nil
}

func (f *fakeIntegrationStore) ListCampaignsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeIntegrationStore) ListMetrics(ctx context.Context, tenantID uuid.UUID, since, until time.Time) ([]store.Metric, error) {
	f.metricsRange = [2]time.Time{since, until}
	return f.metrics, nil
}

type stubAdapter struct {
	platform string
	valid    bool
	err      error
}

func (a *stubAdapter) Platform() string { return a.platform }
func (a *stubAdapter) ValidateCredentials(ctx context.Context, creds platforms.Credentials) (bool, error) {
	return a.valid, a.err
}
func (a *stubAdapter) GetCampaigns(ctx context.Context, creds platforms.Credentials, dr platforms.DateRange) ([]platforms.RawCampaign, error) {
	return nil, nil
}
func (a *stubAdapter) GetInsights(ctx context.Context, creds platforms.Credentials, dr platforms.DateRange) ([]platforms.RawInsight, error) {
	return nil, nil
}
func (a *stubAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	return "https://example.com/authorize", nil
}
func (a *stubAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (platforms.TokenPayload, error) {
	return platforms.TokenPayload{}, nil
}
func (a *stubAdapter) RefreshToken(ctx context.Context, creds platforms.Credentials) (platforms.TokenPayload, error) {
	return platforms.TokenPayload{}, nil
}

func newTestProcessor(s IntegrationStore, valid bool) IntegrationProcessor {
	registry := platforms.NewRegistry()
	registry.Register(&stubAdapter{platform: store.PlatformFacebook, valid: valid})
	return New(s, registry, observability.NewLogger())
}

func TestCreateIntegration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates active integration with valid credentials", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)

		integration, err := p.CreateIntegration(ctx, uuid.New(), store.PlatformFacebook,
			store.JSONB{"access_token": "tok"}, store.JSONB{"ad_account_id": "act_1"})

		require.NoError(t, err)
		assert.True(t, integration.IsActive)
		require.Len(t, fake.created, 1)
		assert.Equal(t, store.PlatformFacebook, fake.created[0].Provider)
	})

	t.Run("creates inactive integration without credentials", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, false)

		integration, err := p.CreateIntegration(ctx, uuid.New(), store.PlatformFacebook, nil, nil)

		require.NoError(t, err)
		assert.False(t, integration.IsActive)
	})

	t.Run("rejects unsupported provider", func(t *testing.T) {
		t.Parallel()

		p := newTestProcessor(newFakeIntegrationStore(), true)

		_, err := p.CreateIntegration(ctx, uuid.New(), "myspace", nil, nil)
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("rejects invalid credentials before writing", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, false)

		_, err := p.CreateIntegration(ctx, uuid.New(), store.PlatformFacebook,
			store.JSONB{"access_token": "bad"}, nil)

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Empty(t, fake.created)
	})

	t.Run("rejects duplicate provider for tenant", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)
		tenantID := uuid.New()

		_, err := p.CreateIntegration(ctx, tenantID, store.PlatformFacebook, nil, nil)
		require.NoError(t, err)

		_, err = p.CreateIntegration(ctx, tenantID, store.PlatformFacebook, nil, nil)
		assert.ErrorIs(t, err, ErrIntegrationExists)
	})
}

func TestSetActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("toggles own integration", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)
		tenantID := uuid.New()

		integration, err := p.CreateIntegration(ctx, tenantID, store.PlatformFacebook, nil, nil)
		require.NoError(t, err)

		require.NoError(t, p.SetActive(ctx, tenantID, integration.ID, true))
		assert.True(t, fake.activeCalls[integration.ID])
	})

	t.Run("cannot toggle another tenant's integration", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)

		integration, err := p.CreateIntegration(ctx, uuid.New(), store.PlatformFacebook, nil, nil)
		require.NoError(t, err)

		err = p.SetActive(ctx, uuid.New(), integration.ID, false)
		assert.ErrorIs(t, err, ErrIntegrationNotFound)
		assert.Empty(t, fake.activeCalls)
	})

	t.Run("unknown integration", func(t *testing.T) {
		t.Parallel()

		p := newTestProcessor(newFakeIntegrationStore(), true)

		err := p.SetActive(ctx, uuid.New(), uuid.New(), true)
		assert.ErrorIs(t, err, ErrIntegrationNotFound)
	})
}

func TestListMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("zero range defaults to trailing 30 days", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)

		_, err := p.ListMetrics(ctx, uuid.New(), time.Time{}, time.Time{})
		require.NoError(t, err)

		since, until := fake.metricsRange[0], fake.metricsRange[1]
		assert.WithinDuration(t, time.Now().UTC(), until, time.Minute)
		assert.WithinDuration(t, until.AddDate(0, 0, -30), since, time.Minute)
	})

	t.Run("explicit range passed through", func(t *testing.T) {
		t.Parallel()

		fake := newFakeIntegrationStore()
		p := newTestProcessor(fake, true)

		since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		_, err := p.ListMetrics(ctx, uuid.New(), since, until)

		require.NoError(t, err)
		assert.Equal(t, since, fake.metricsRange[0])
		assert.Equal(t, until, fake.metricsRange[1])
	})
}
