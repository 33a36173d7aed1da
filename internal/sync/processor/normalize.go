package processor

import (
	"errors"
	"strconv"
	"time"

	"sync-server/internal/platforms"
	"sync-server/internal/store"
)

var (
	errMissingExternalID = errors.New("record has no external id")
	errMissingDate       = errors.New("record has no date")
)

// campaignFields is a platform-neutral view of one raw campaign record
type campaignFields struct {
	ExternalID string
	Name       string
	Status     string
	Objective  *string
	Budget     *float64
	Currency   *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// metricFields is a platform-neutral view of one raw insight row. The
// external campaign id is resolved to a local campaign after campaigns have
// been upserted.
type metricFields struct {
	ExternalCampaignID string
	Date               time.Time
	Source             string
	Impressions        int64
	Clicks             int64
	Conversions        int64
	Spend              float64
	Revenue            float64
	Orders             int64
	OrganicTraffic     int64
	Metadata           store.JSONB
}

// normalizeCampaign reconciles per-platform field names into campaignFields.
// Facebook and TikTok are the only platforms that expose campaign objects.
func normalizeCampaign(raw platforms.RawCampaign) (campaignFields, error) {
	var out campaignFields
	switch raw.Platform {
	case store.PlatformTikTok:
		out.ExternalID = fieldString(raw.Fields, "campaign_id")
		out.Name = fieldString(raw.Fields, "campaign_name")
		out.Status = fieldString(raw.Fields, "operation_status")
		out.Objective = fieldStringPtr(raw.Fields, "objective_type")
		out.Budget = fieldFloatPtr(raw.Fields, "budget")
		out.Currency = fieldStringPtr(raw.Fields, "currency")
		out.StartDate = fieldTimePtr(raw.Fields, "create_time", "2006-01-02 15:04:05")
	default:
		out.ExternalID = fieldString(raw.Fields, "id", "campaign_id", "campaignId")
		out.Name = fieldString(raw.Fields, "name", "campaign_name")
		out.Status = fieldString(raw.Fields, "status", "effective_status")
		out.Objective = fieldStringPtr(raw.Fields, "objective")
		out.Budget = fieldFloatPtr(raw.Fields, "daily_budget")
		out.Currency = fieldStringPtr(raw.Fields, "account_currency", "currency")
		out.StartDate = fieldTimePtr(raw.Fields, "start_time", time.RFC3339)
		out.EndDate = fieldTimePtr(raw.Fields, "stop_time", time.RFC3339)
	}
	if out.ExternalID == "" {
		return campaignFields{}, errMissingExternalID
	}
	if out.Name == "" {
		out.Name = out.ExternalID
	}
	if out.Status == "" {
		out.Status = "unknown"
	}
	return out, nil
}

// normalizeInsight reconciles one raw insight row. Missing numeric fields
// default to zero so a partial platform response still produces a row.
func normalizeInsight(raw platforms.RawInsight) (metricFields, error) {
	out := metricFields{Source: raw.Source}

	switch raw.Source {
	case "facebook_ads":
		out.ExternalCampaignID = fieldString(raw.Fields, "campaign_id")
		out.Impressions = fieldInt(raw.Fields, "impressions")
		out.Clicks = fieldInt(raw.Fields, "clicks")
		out.Spend = fieldFloat(raw.Fields, "spend")
		out.Conversions = facebookConversions(raw.Fields)
		if t, ok := fieldTime(raw.Fields, "date_start", "2006-01-02"); ok {
			out.Date = t
		}
	case "tiktok_ads":
		out.ExternalCampaignID = fieldString(raw.Fields, "campaign_id")
		out.Impressions = fieldInt(raw.Fields, "impressions")
		out.Clicks = fieldInt(raw.Fields, "clicks")
		out.Spend = fieldFloat(raw.Fields, "spend")
		out.Conversions = fieldInt(raw.Fields, "conversions")
		if t, ok := fieldTime(raw.Fields, "stat_time_day", "2006-01-02 15:04:05", "2006-01-02"); ok {
			out.Date = t
		}
	case "line_messaging":
		// Delivered message counts stand in for impressions; follower
		// numbers ride along as metadata.
		out.Impressions = fieldInt(raw.Fields, "broadcast") +
			fieldInt(raw.Fields, "api_broadcast") +
			fieldInt(raw.Fields, "api_push")
		out.Metadata = store.JSONB{
			"followers":        fieldInt(raw.Fields, "followers"),
			"targeted_reaches": fieldInt(raw.Fields, "targeted_reaches"),
		}
		if t, ok := fieldTime(raw.Fields, "date", "2006-01-02"); ok {
			out.Date = t
		}
	case "shopee_orders":
		out.Orders = fieldInt(raw.Fields, "orders")
		out.Revenue = fieldFloat(raw.Fields, "revenue")
		if t, ok := fieldTime(raw.Fields, "date", "2006-01-02"); ok {
			out.Date = t
		}
	case "google_analytics":
		out.OrganicTraffic = fieldInt(raw.Fields, "sessions")
		out.Impressions = fieldInt(raw.Fields, "page_views")
		out.Conversions = fieldInt(raw.Fields, "conversions")
		out.Metadata = store.JSONB{
			"active_users": fieldInt(raw.Fields, "active_users"),
		}
		if t, ok := fieldTime(raw.Fields, "date", "2006-01-02"); ok {
			out.Date = t
		}
	default:
		out.ExternalCampaignID = fieldString(raw.Fields, "campaign_id", "campaignId", "id")
		out.Impressions = fieldInt(raw.Fields, "impressions")
		out.Clicks = fieldInt(raw.Fields, "clicks")
		out.Spend = fieldFloat(raw.Fields, "spend")
		out.Conversions = fieldInt(raw.Fields, "conversions")
		if t, ok := fieldTime(raw.Fields, "date", "2006-01-02"); ok {
			out.Date = t
		}
	}

	if out.Date.IsZero() {
		return metricFields{}, errMissingDate
	}
	out.Date = store.TruncateToDayUTC(out.Date)
	return out, nil
}

// facebookConversions sums purchase-style entries in the graph API actions
// list. Each entry looks like {"action_type": "...", "value": "3"}.
func facebookConversions(fields map[string]interface{}) int64 {
	actions, ok := fields["actions"].([]interface{})
	if !ok {
		return 0
	}
	counted := map[string]bool{
		"purchase":              true,
		"lead":                  true,
		"complete_registration": true,
	}
	var total int64
	for _, entry := range actions {
		action, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		actionType, _ := action["action_type"].(string)
		if counted[actionType] {
			total += asInt(action["value"])
		}
	}
	return total
}

// Field extraction helpers. Platform payloads arrive as decoded JSON, so
// numbers may be float64 or strings depending on the API.

func fieldString(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func fieldStringPtr(fields map[string]interface{}, keys ...string) *string {
	if v := fieldString(fields, keys...); v != "" {
		return &v
	}
	return nil
}

func fieldFloat(fields map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return asFloat(v)
		}
	}
	return 0
}

func fieldFloatPtr(fields map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			f := asFloat(v)
			return &f
		}
	}
	return nil
}

func fieldInt(fields map[string]interface{}, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return asInt(v)
		}
	}
	return 0
}

func fieldTime(fields map[string]interface{}, key string, layouts ...string) (time.Time, bool) {
	raw, ok := fields[key].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fieldTimePtr(fields map[string]interface{}, key string, layouts ...string) *time.Time {
	if t, ok := fieldTime(fields, key, layouts...); ok {
		return &t
	}
	return nil
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, _ := strconv.ParseFloat(n, 64)
			return int64(f)
		}
		return i
	default:
		return 0
	}
}
