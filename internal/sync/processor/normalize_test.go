package processor

import (
	"testing"
	"time"

	"sync-server/internal/platforms"
	"sync-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCampaign(t *testing.T) {
	t.Parallel()

	t.Run("facebook field names", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeCampaign(platforms.RawCampaign{
			Platform: store.PlatformFacebook,
			Fields: map[string]interface{}{
				"id":           "123",
				"name":         "Launch",
				"status":       "ACTIVE",
				"objective":    "CONVERSIONS",
				"daily_budget": "2500",
				"start_time":   "2026-07-01T00:00:00+0000",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "123", fields.ExternalID)
		assert.Equal(t, "Launch", fields.Name)
		assert.Equal(t, "ACTIVE", fields.Status)
		require.NotNil(t, fields.Objective)
		assert.Equal(t, "CONVERSIONS", *fields.Objective)
		require.NotNil(t, fields.Budget)
		assert.InDelta(t, 2500, *fields.Budget, 0.001)
	})

	t.Run("tiktok field names", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeCampaign(platforms.RawCampaign{
			Platform: store.PlatformTikTok,
			Fields: map[string]interface{}{
				"campaign_id":      "999",
				"campaign_name":    "Video Push",
				"operation_status": "ENABLE",
				"objective_type":   "TRAFFIC",
				"budget":           50.0,
				"currency":         "USD",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "999", fields.ExternalID)
		assert.Equal(t, "Video Push", fields.Name)
		assert.Equal(t, "ENABLE", fields.Status)
		require.NotNil(t, fields.Currency)
		assert.Equal(t, "USD", *fields.Currency)
	})

	t.Run("missing external id is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := normalizeCampaign(platforms.RawCampaign{
			Platform: store.PlatformFacebook,
			Fields:   map[string]interface{}{"name": "orphan"},
		})
		assert.ErrorIs(t, err, errMissingExternalID)
	})

	t.Run("name defaults to external id", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeCampaign(platforms.RawCampaign{
			Platform: store.PlatformFacebook,
			Fields:   map[string]interface{}{"id": "42"},
		})
		require.NoError(t, err)
		assert.Equal(t, "42", fields.Name)
		assert.Equal(t, "unknown", fields.Status)
	})
}

func TestNormalizeInsight(t *testing.T) {
	t.Parallel()

	t.Run("facebook numbers arrive as strings", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformFacebook,
			Source:   "facebook_ads",
			Fields: map[string]interface{}{
				"campaign_id": "123",
				"date_start":  "2026-08-15",
				"impressions": "48210",
				"clicks":      "903",
				"spend":       "120.75",
				"actions": []interface{}{
					map[string]interface{}{"action_type": "purchase", "value": "12"},
					map[string]interface{}{"action_type": "link_click", "value": "900"},
					map[string]interface{}{"action_type": "lead", "value": "3"},
				},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "123", fields.ExternalCampaignID)
		assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), fields.Date)
		assert.Equal(t, int64(48210), fields.Impressions)
		assert.Equal(t, int64(903), fields.Clicks)
		assert.InDelta(t, 120.75, fields.Spend, 0.001)
		assert.Equal(t, int64(15), fields.Conversions)
	})

	t.Run("tiktok datetime day column", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformTikTok,
			Source:   "tiktok_ads",
			Fields: map[string]interface{}{
				"campaign_id":   "999",
				"stat_time_day": "2026-08-15 00:00:00",
				"impressions":   "100",
				"conversions":   "4",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), fields.Date)
		assert.Equal(t, int64(100), fields.Impressions)
		assert.Equal(t, int64(4), fields.Conversions)
		// Absent fields default to zero, the row is still produced
		assert.Zero(t, fields.Clicks)
		assert.Zero(t, fields.Spend)
	})

	t.Run("line delivery counts become impressions", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformLine,
			Source:   "line_messaging",
			Fields: map[string]interface{}{
				"date":          "2026-08-15",
				"followers":     float64(5200),
				"broadcast":     float64(1000),
				"api_broadcast": float64(200),
				"api_push":      float64(50),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1250), fields.Impressions)
		assert.Empty(t, fields.ExternalCampaignID)
		assert.Equal(t, int64(5200), fields.Metadata["followers"])
	})

	t.Run("shopee order rollup", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformShopee,
			Source:   "shopee_orders",
			Fields: map[string]interface{}{
				"date":    "2026-08-15",
				"orders":  int64(9),
				"revenue": 812.40,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(9), fields.Orders)
		assert.InDelta(t, 812.40, fields.Revenue, 0.001)
	})

	t.Run("google analytics traffic mapping", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformGoogleAnalytics,
			Source:   "google_analytics",
			Fields: map[string]interface{}{
				"date":        "2026-08-15",
				"sessions":    float64(3400),
				"page_views":  float64(9100),
				"conversions": float64(31),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3400), fields.OrganicTraffic)
		assert.Equal(t, int64(9100), fields.Impressions)
		assert.Equal(t, int64(31), fields.Conversions)
	})

	t.Run("missing date is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformFacebook,
			Source:   "facebook_ads",
			Fields:   map[string]interface{}{"impressions": "5"},
		})
		assert.ErrorIs(t, err, errMissingDate)
	})

	t.Run("timestamps truncate to the utc day", func(t *testing.T) {
		t.Parallel()
		fields, err := normalizeInsight(platforms.RawInsight{
			Platform: store.PlatformTikTok,
			Source:   "tiktok_ads",
			Fields: map[string]interface{}{
				"stat_time_day": "2026-08-15 13:45:00",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), fields.Date)
	})
}
