package processor

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"sync-server/internal/observability"
	"sync-server/internal/platforms"
	"sync-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSyncStore is an in-memory SyncStore. Writes are captured both as a
// call log (campaigns, metrics, notifications) and as keyed rows mirroring
// the database's conflict targets, so tests can assert upsert semantics.
type fakeSyncStore struct {
	integrations map[uuid.UUID]store.Integration

	campaigns     []store.UpsertCampaignParams
	metrics       []store.UpsertMetricParams
	history       []store.CreateSyncHistoryParams
	notifications []store.UpsertNotificationParams
	resolved      []string
	statusUpdates map[uuid.UUID]string
	lastSyncAt    map[uuid.UUID]*time.Time

	campaignRows     map[string]store.UpsertCampaignParams
	campaignIDs      map[string]uuid.UUID
	metricRows       map[string]store.UpsertMetricParams
	notificationRows map[string]store.UpsertNotificationParams
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{
		integrations:     make(map[uuid.UUID]store.Integration),
		statusUpdates:    make(map[uuid.UUID]string),
		lastSyncAt:       make(map[uuid.UUID]*time.Time),
		campaignRows:     make(map[string]store.UpsertCampaignParams),
		campaignIDs:      make(map[string]uuid.UUID),
		metricRows:       make(map[string]store.UpsertMetricParams),
		notificationRows: make(map[string]store.UpsertNotificationParams),
	}
}

// campaignKey mirrors the campaigns table's (tenant_id, platform, external_id)
// conflict target.
func campaignKey(params store.UpsertCampaignParams) string {
	return params.TenantID.String() + "|" + params.Platform + "|" + params.ExternalID
}

// metricKey mirrors the six-part identity used by Store.UpsertMetric.
func metricKey(params store.UpsertMetricParams) string {
	campaignID := ""
	if params.CampaignID != nil {
		campaignID = params.CampaignID.String()
	}
	hour := ""
	if params.Hour != nil {
		hour = strconv.Itoa(*params.Hour)
	}
	return params.TenantID.String() + "|" + campaignID + "|" + params.Date.Format("2006-01-02") + "|" + hour + "|" + params.Platform + "|" + params.Source
}

func notificationKey(params store.UpsertNotificationParams) string {
	return params.TenantID.String() + "|" + params.Platform
}

func (f *fakeSyncStore) GetIntegrationByID(ctx context.Context, id uuid.UUID) (store.Integration, error) {
	integration, ok := f.integrations[id]
	if !ok {
		return store.Integration{}, store.ErrNotFound
	}
	return integration, nil
}

func (f *fakeSyncStore) GetIntegrationByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider string) (store.Integration, error) {
	for _, integration := range f.integrations {
		if integration.TenantID == tenantID && integration.Provider == provider {
			return integration, nil
		}
	}
	return store.Integration{}, store.ErrNotFound
}

func (f *fakeSyncStore) ListActiveIntegrationsByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Integration, error) {
	var active []store.Integration
	for _, integration := range f.integrations {
		if integration.TenantID == tenantID && integration.IsActive {
			active = append(active, integration)
		}
	}
	return active, nil
}

func (f *fakeSyncStore) UpdateIntegrationStatus(ctx context.Context, id uuid.UUID, status string, lastSyncAt *time.Time) error {
	f.statusUpdates[id] = status
	if lastSyncAt != nil {
		f.lastSyncAt[id] = lastSyncAt
	}
	return nil
}

func (f *fakeSyncStore) UpsertCampaign(ctx context.Context, params store.UpsertCampaignParams) (store.Campaign, error) {
	key := campaignKey(params)
	id, ok := f.campaignIDs[key]
	if !ok {
		id = uuid.New()
		f.campaignIDs[key] = id
	}
	f.campaigns = append(f.campaigns, params)
	f.campaignRows[key] = params
	return store.Campaign{
		ID:         id,
		TenantID:   params.TenantID,
		Platform:   params.Platform,
		ExternalID: params.ExternalID,
		Name:       params.Name,
	}, nil
}

func (f *fakeSyncStore) UpsertMetric(ctx context.Context, params store.UpsertMetricParams) (store.Metric, error) {
	f.metrics = append(f.metrics, params)
	f.metricRows[metricKey(params)] = params
	return store.Metric{ID: uuid.New(), TenantID: params.TenantID}, nil
}

func (f *fakeSyncStore) CreateSyncHistory(ctx context.Context, params store.CreateSyncHistoryParams) (store.SyncHistory, error) {
	f.history = append(f.history, params)
	return store.SyncHistory{ID: uuid.New()}, nil
}

func (f *fakeSyncStore) UpsertOpenNotification(ctx context.Context, params store.UpsertNotificationParams) (store.IntegrationNotification, error) {
	f.notifications = append(f.notifications, params)
	f.notificationRows[notificationKey(params)] = params
	return store.IntegrationNotification{ID: uuid.New()}, nil
}

func (f *fakeSyncStore) ResolveOpenNotification(ctx context.Context, tenantID uuid.UUID, platform string) error {
	f.resolved = append(f.resolved, platform)
	return nil
}

func (f *fakeSyncStore) ListSyncHistory(ctx context.Context, tenantID, integrationID uuid.UUID, limit int) ([]store.SyncHistory, error) {
	return nil, nil
}

func (f *fakeSyncStore) ListNotificationsByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.IntegrationNotification, error) {
	return nil, nil
}

// fakeAdapter returns canned campaigns and insights, or fails on demand. It
// records every date range it is handed.
type fakeAdapter struct {
	platform     string
	campaigns    []platforms.RawCampaign
	insights     []platforms.RawInsight
	campaignsErr error
	insightsErr  error
	windows      []platforms.DateRange
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) ValidateCredentials(ctx context.Context, creds platforms.Credentials) (bool, error) {
	return true, nil
}

func (a *fakeAdapter) GetCampaigns(ctx context.Context, creds platforms.Credentials, dr platforms.DateRange) ([]platforms.RawCampaign, error) {
	a.windows = append(a.windows, dr)
	return a.campaigns, a.campaignsErr
}

func (a *fakeAdapter) GetInsights(ctx context.Context, creds platforms.Credentials, dr platforms.DateRange) ([]platforms.RawInsight, error) {
	a.windows = append(a.windows, dr)
	return a.insights, a.insightsErr
}

func (a *fakeAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	return "https://example.com/authorize?state=" + state, nil
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (platforms.TokenPayload, error) {
	return platforms.TokenPayload{"access_token": "token"}, nil
}

func (a *fakeAdapter) RefreshToken(ctx context.Context, creds platforms.Credentials) (platforms.TokenPayload, error) {
	return platforms.TokenPayload{"access_token": "refreshed"}, nil
}

func activeIntegration(tenantID uuid.UUID, provider string) store.Integration {
	return store.Integration{
		ID:       uuid.New(),
		TenantID: tenantID,
		Provider: provider,
		IsActive: true,
		Status:   store.IntegrationStatusActive,
	}
}

func TestSyncPlatform_Success(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform: store.PlatformFacebook,
		campaigns: []platforms.RawCampaign{
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{
				"id":     "cmp-1",
				"name":   "Spring Sale",
				"status": "ACTIVE",
			}},
		},
		insights: []platforms.RawInsight{
			{Platform: store.PlatformFacebook, Source: "facebook_ads", Fields: map[string]interface{}{
				"campaign_id": "cmp-1",
				"date_start":  "2026-08-01",
				"impressions": "1200",
				"clicks":      "50",
				"spend":       "34.50",
			}},
		},
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{})

	require.True(t, result.Success)
	assert.Equal(t, store.PlatformFacebook, result.Platform)
	assert.Empty(t, result.Error)

	require.Len(t, fake.campaigns, 1)
	assert.Equal(t, "cmp-1", fake.campaigns[0].ExternalID)
	assert.Equal(t, "Spring Sale", fake.campaigns[0].Name)

	require.Len(t, fake.metrics, 1)
	metric := fake.metrics[0]
	require.NotNil(t, metric.CampaignID)
	assert.Equal(t, int64(1200), metric.Impressions)
	assert.Equal(t, int64(50), metric.Clicks)
	assert.InDelta(t, 34.50, metric.Spend, 0.001)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), metric.Date)

	assert.Equal(t, store.IntegrationStatusActive, fake.statusUpdates[integration.ID])
	require.NotNil(t, fake.lastSyncAt[integration.ID])

	require.Len(t, fake.history, 1)
	assert.Equal(t, store.SyncStatusSuccess, fake.history[0].Status)
	assert.Equal(t, []string{store.PlatformFacebook}, fake.resolved)
	assert.Empty(t, fake.notifications)
}

func TestSyncPlatform_FetchFailure(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformTikTok)
	fake.integrations[integration.ID] = integration

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform:    store.PlatformTikTok,
		insightsErr: errors.New("token expired"),
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), tenantID, store.PlatformTikTok, platforms.DateRange{})

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "token expired")

	assert.Equal(t, store.IntegrationStatusError, fake.statusUpdates[integration.ID])
	assert.Nil(t, fake.lastSyncAt[integration.ID])

	require.Len(t, fake.history, 1)
	assert.Equal(t, store.SyncStatusError, fake.history[0].Status)
	require.NotNil(t, fake.history[0].Error)

	require.Len(t, fake.notifications, 1)
	notification := fake.notifications[0]
	assert.Equal(t, store.PlatformTikTok, notification.Platform)
	assert.Equal(t, store.SeverityCritical, notification.Severity)
	assert.Equal(t, "https://app.example.com/integrations", notification.ActionURL)
	assert.Empty(t, fake.resolved)
}

func TestSyncPlatform_IntegrationNotFound(t *testing.T) {
	t.Parallel()

	p := New(newFakeSyncStore(), platforms.NewRegistry(), "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), uuid.New(), store.PlatformLine, platforms.DateRange{})

	require.False(t, result.Success)
	assert.Equal(t, ErrIntegrationNotFound.Error(), result.Error)
}

func TestSyncIntegrationByID_Inactive(t *testing.T) {
	t.Parallel()

	fake := newFakeSyncStore()
	integration := activeIntegration(uuid.New(), store.PlatformShopee)
	integration.IsActive = false
	fake.integrations[integration.ID] = integration

	p := New(fake, platforms.NewRegistry(), "https://app.example.com", observability.NewLogger())
	result, err := p.SyncIntegrationByID(context.Background(), integration.ID, platforms.DateRange{})

	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, ErrIntegrationInactive.Error(), result.Error)
	// An inactive integration is skipped, not failed
	assert.Empty(t, fake.history)
	assert.Empty(t, fake.notifications)
}

func TestSyncAllPlatforms_IsolatesFailures(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	healthy := activeIntegration(tenantID, store.PlatformShopee)
	broken := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[healthy.ID] = healthy
	fake.integrations[broken.ID] = broken

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform: store.PlatformShopee,
		insights: []platforms.RawInsight{
			{Platform: store.PlatformShopee, Source: "shopee_orders", Fields: map[string]interface{}{
				"date":    "2026-08-02",
				"orders":  int64(7),
				"revenue": 412.30,
			}},
		},
	})
	registry.Register(&fakeAdapter{
		platform:     store.PlatformFacebook,
		campaignsErr: errors.New("rate limited"),
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	results, err := p.SyncAllPlatforms(context.Background(), tenantID, platforms.DateRange{})

	require.NoError(t, err)
	require.Len(t, results, 2)

	byPlatform := make(map[string]SyncResult)
	for _, r := range results {
		byPlatform[r.Platform] = r
	}
	assert.True(t, byPlatform[store.PlatformShopee].Success)
	assert.False(t, byPlatform[store.PlatformFacebook].Success)
	assert.Contains(t, byPlatform[store.PlatformFacebook].Error, "rate limited")

	// The healthy platform still wrote its metric
	require.Len(t, fake.metrics, 1)
	assert.Equal(t, int64(7), fake.metrics[0].Orders)
	assert.InDelta(t, 412.30, fake.metrics[0].Revenue, 0.001)
}

func TestSyncPlatform_SkipsUnusableRecords(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform: store.PlatformFacebook,
		campaigns: []platforms.RawCampaign{
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{"name": "no id"}},
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{"id": "cmp-2", "name": "Ok"}},
		},
		insights: []platforms.RawInsight{
			{Platform: store.PlatformFacebook, Source: "facebook_ads", Fields: map[string]interface{}{
				"campaign_id": "cmp-2",
				"impressions": "10",
			}},
		},
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{})

	require.True(t, result.Success)
	assert.Len(t, fake.campaigns, 1)
	// The insight without a date is skipped too
	assert.Empty(t, fake.metrics)
	assert.Equal(t, 2, result.Data["skipped"])
}

func TestSyncPlatform_PassesDateRangeToAdapter(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	adapter := &fakeAdapter{platform: store.PlatformFacebook}
	registry := platforms.NewRegistry()
	registry.Register(adapter)

	window := platforms.DateRange{
		Since: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
	}

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, window)

	require.True(t, result.Success)
	require.NotEmpty(t, adapter.windows)
	for _, got := range adapter.windows {
		assert.Equal(t, window, got)
	}
}

func TestSyncPlatform_DefaultsDateRangeWhenUnset(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	adapter := &fakeAdapter{platform: store.PlatformFacebook}
	registry := platforms.NewRegistry()
	registry.Register(adapter)

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	result := p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{})

	require.True(t, result.Success)
	require.NotEmpty(t, adapter.windows)
	now := time.Now().UTC()
	for _, got := range adapter.windows {
		assert.WithinDuration(t, now, got.Until, time.Minute)
		assert.WithinDuration(t, now.AddDate(0, 0, -30), got.Since, time.Minute)
	}
}

func TestSyncPlatform_CampaignUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	adapter := &fakeAdapter{
		platform: store.PlatformFacebook,
		campaigns: []platforms.RawCampaign{
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{
				"id":     "cmp-1",
				"name":   "Spring Sale",
				"status": "ACTIVE",
			}},
		},
	}
	registry := platforms.NewRegistry()
	registry.Register(adapter)

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	require.True(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{}).Success)

	// The second sync sees the campaign renamed and paused
	adapter.campaigns[0].Fields["name"] = "Summer Sale"
	adapter.campaigns[0].Fields["status"] = "PAUSED"
	require.True(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{}).Success)

	require.Len(t, fake.campaignRows, 1)
	row := fake.campaignRows[tenantID.String()+"|"+store.PlatformFacebook+"|cmp-1"]
	assert.Equal(t, "Summer Sale", row.Name)
	assert.Equal(t, "PAUSED", row.Status)
}

func TestSyncPlatform_MetricUpsertReplacesNotSums(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	adapter := &fakeAdapter{
		platform: store.PlatformFacebook,
		campaigns: []platforms.RawCampaign{
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{
				"id":     "cmp-1",
				"name":   "Spring Sale",
				"status": "ACTIVE",
			}},
		},
		insights: []platforms.RawInsight{
			{Platform: store.PlatformFacebook, Source: "facebook_ads", Fields: map[string]interface{}{
				"campaign_id": "cmp-1",
				"date_start":  "2026-08-01",
				"impressions": "1000",
				"spend":       "10.00",
			}},
		},
	}
	registry := platforms.NewRegistry()
	registry.Register(adapter)

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	require.True(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{}).Success)

	// Re-syncing the same day with fresher numbers replaces the row
	adapter.insights[0].Fields["impressions"] = "1500"
	adapter.insights[0].Fields["spend"] = "20.00"
	require.True(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{}).Success)

	require.Len(t, fake.metricRows, 1)
	for _, row := range fake.metricRows {
		assert.Equal(t, int64(1500), row.Impressions)
		assert.InDelta(t, 20.00, row.Spend, 0.001)
	}
}

func TestSyncPlatform_RepeatedFailuresKeepOneOpenNotification(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformTikTok)
	fake.integrations[integration.ID] = integration

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform:    store.PlatformTikTok,
		insightsErr: errors.New("token expired"),
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	require.False(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformTikTok, platforms.DateRange{}).Success)
	require.False(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformTikTok, platforms.DateRange{}).Success)

	// Both failures were raised, but they collapse onto one open row
	assert.Len(t, fake.notifications, 2)
	require.Len(t, fake.notificationRows, 1)
	row := fake.notificationRows[tenantID.String()+"|"+store.PlatformTikTok]
	assert.Contains(t, row.Reason, "token expired")
}

func TestSyncPlatform_MapsCampaignCurrency(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	fake := newFakeSyncStore()
	integration := activeIntegration(tenantID, store.PlatformFacebook)
	fake.integrations[integration.ID] = integration

	registry := platforms.NewRegistry()
	registry.Register(&fakeAdapter{
		platform: store.PlatformFacebook,
		campaigns: []platforms.RawCampaign{
			{Platform: store.PlatformFacebook, Fields: map[string]interface{}{
				"id":               "cmp-1",
				"name":             "Spring Sale",
				"status":           "ACTIVE",
				"account_currency": "THB",
			}},
		},
	})

	p := New(fake, registry, "https://app.example.com", observability.NewLogger())
	require.True(t, p.SyncPlatform(context.Background(), tenantID, store.PlatformFacebook, platforms.DateRange{}).Success)

	require.Len(t, fake.campaigns, 1)
	require.NotNil(t, fake.campaigns[0].Currency)
	assert.Equal(t, "THB", *fake.campaigns[0].Currency)
}
