package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("incompatible type for JSONB")
	}

	// Handle empty or null JSON
	if len(bytes) == 0 || string(bytes) == "null" {
		*j = make(JSONB)
		return nil
	}

	result := make(JSONB)
	err := json.Unmarshal(bytes, &result)
	if err != nil {
		return err
	}
	*j = result
	return nil
}

// ============================================================================
// Platform identifiers
// ============================================================================

// Platform names used across integrations, campaigns, metrics and webhooks
const (
	PlatformFacebook        = "facebook"
	PlatformTikTok          = "tiktok"
	PlatformLine            = "line"
	PlatformShopee          = "shopee"
	PlatformGoogleAnalytics = "google_analytics"
)

// ============================================================================
// Integration
// ============================================================================

// IntegrationStatus represents the health state of an integration
const (
	IntegrationStatusActive = "active"
	IntegrationStatusError  = "error"
)

// Integration is a tenant's configured connection to one external platform
type Integration struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Provider    string     `db:"provider" json:"provider"`
	Credentials JSONB      `db:"credentials" json:"-"`
	Config      JSONB      `db:"config" json:"config"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	Status      string     `db:"status" json:"status"`
	LastSyncAt  *time.Time `db:"last_sync_at" json:"last_sync_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// Campaign
// ============================================================================

// Campaign is the canonical representation of one external ad campaign.
// (tenant_id, platform, external_id) is the upsert identity.
type Campaign struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	IntegrationID uuid.UUID  `db:"integration_id" json:"integration_id"`
	Platform      string     `db:"platform" json:"platform"`
	ExternalID    string     `db:"external_id" json:"external_id"`
	Name          string     `db:"name" json:"name"`
	Status        string     `db:"status" json:"status"`
	Objective     *string    `db:"objective" json:"objective"`
	Budget        *float64   `db:"budget" json:"budget"`
	Currency      *string    `db:"currency" json:"currency"`
	StartDate     *time.Time `db:"start_date" json:"start_date"`
	EndDate       *time.Time `db:"end_date" json:"end_date"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// Metric
// ============================================================================

// Metric is one day (optionally hour) of performance numbers for one metric
// stream. (tenant_id, campaign_id, date, hour, platform, source) uniquely
// identifies a row; writes replace, never accumulate.
type Metric struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TenantID       uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	CampaignID     *uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Date           time.Time  `db:"date" json:"date"`
	Hour           *int       `db:"hour" json:"hour"`
	Platform       string     `db:"platform" json:"platform"`
	Source         string     `db:"source" json:"source"`
	Impressions    int64      `db:"impressions" json:"impressions"`
	Clicks         int64      `db:"clicks" json:"clicks"`
	Conversions    int64      `db:"conversions" json:"conversions"`
	Spend          float64    `db:"spend" json:"spend"`
	Revenue        float64    `db:"revenue" json:"revenue"`
	Orders         int64      `db:"orders" json:"orders"`
	OrganicTraffic int64      `db:"organic_traffic" json:"organic_traffic"`
	Metadata       JSONB      `db:"metadata" json:"metadata"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// SyncHistory
// ============================================================================

// Sync attempt outcomes
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncHistory is an append-only audit row per sync attempt
type SyncHistory struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TenantID      uuid.UUID `db:"tenant_id" json:"tenant_id"`
	IntegrationID uuid.UUID `db:"integration_id" json:"integration_id"`
	Platform      string    `db:"platform" json:"platform"`
	Status        string    `db:"status" json:"status"`
	Data          JSONB     `db:"data" json:"data"`
	Error         *string   `db:"error" json:"error"`
	SyncedAt      time.Time `db:"synced_at" json:"synced_at"`
}

// ============================================================================
// IntegrationNotification
// ============================================================================

// Notification lifecycle states
const (
	NotificationStatusOpen     = "open"
	NotificationStatusResolved = "resolved"
)

// Notification severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// IntegrationNotification is a tenant-visible alert about a failing
// integration. At most one open row exists per (tenant_id, platform).
type IntegrationNotification struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	IntegrationID uuid.UUID  `db:"integration_id" json:"integration_id"`
	Platform      string     `db:"platform" json:"platform"`
	Title         string     `db:"title" json:"title"`
	Reason        string     `db:"reason" json:"reason"`
	ActionURL     string     `db:"action_url" json:"action_url"`
	Severity      string     `db:"severity" json:"severity"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolved_at"`
}

// ============================================================================
// WebhookEvent
// ============================================================================

// WebhookEvent is a durably stored inbound notification from a platform,
// replayable independent of redelivery.
type WebhookEvent struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TenantID   *uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Platform   string     `db:"platform" json:"platform"`
	Type       string     `db:"type" json:"type"`
	Data       JSONB      `db:"data" json:"data"`
	Signature  *string    `db:"signature" json:"signature"`
	ReceivedAt time.Time  `db:"received_at" json:"received_at"`
}

// ============================================================================
// OAuthState
// ============================================================================

// OAuthState is a short-lived, single-use token binding an authorize request
// to its callback. Deleted on consumption; expired rows are invalid.
type OAuthState struct {
	ID            uuid.UUID `db:"id" json:"id"`
	IntegrationID uuid.UUID `db:"integration_id" json:"integration_id"`
	State         string    `db:"state" json:"state"`
	RedirectURI   string    `db:"redirect_uri" json:"redirect_uri"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
