package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrUnknownPlatform   = errors.New("unknown platform")
	ErrOAuthNotSupported = errors.New("platform does not support oauth")
)

// DateRange bounds a fetch window. Adapters interpret it at day granularity.
type DateRange struct {
	Since time.Time
	Until time.Time
}

// DefaultDateRange covers the last 30 days
func DefaultDateRange() DateRange {
	now := time.Now().UTC()
	return DateRange{
		Since: now.AddDate(0, 0, -30),
		Until: now,
	}
}

// Credentials is the opaque credential/config blob stored on an integration.
// Adapters pull their own keys out of it.
type Credentials map[string]interface{}

// String returns the string value for a credential key, or empty
func (c Credentials) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// TokenPayload is the raw token response from a platform's token endpoint.
// It is merged into the integration config as-is.
type TokenPayload map[string]interface{}

// RawCampaign is one campaign record as a platform returned it, before field
// reconciliation. Field names differ per platform and are mapped centrally.
type RawCampaign struct {
	Platform string
	Fields   map[string]interface{}
}

// RawInsight is one metric row as a platform returned it. Platforms without
// a campaign concept return advertiser-wide rows with a fixed Source tag and
// no campaign reference.
type RawInsight struct {
	Platform string
	Source   string
	Fields   map[string]interface{}
}

// Adapter is the capability set every platform integration implements. The
// orchestrator only talks to platforms through this interface.
type Adapter interface {
	// Platform returns the canonical platform name
	Platform() string
	// ValidateCredentials checks whether the stored credentials are usable
	ValidateCredentials(ctx context.Context, creds Credentials) (bool, error)
	// GetCampaigns fetches campaign records; empty for platforms without campaigns
	GetCampaigns(ctx context.Context, creds Credentials, dr DateRange) ([]RawCampaign, error)
	// GetInsights fetches metric rows for the window
	GetInsights(ctx context.Context, creds Credentials, dr DateRange) ([]RawInsight, error)
	// GetAuthURL builds the provider authorize URL for the oauth round trip
	GetAuthURL(redirectURI, state string) (string, error)
	// ExchangeCode trades an authorization code for a token payload
	ExchangeCode(ctx context.Context, code, redirectURI string) (TokenPayload, error)
	// RefreshToken obtains a fresh token payload from stored credentials
	RefreshToken(ctx context.Context, creds Credentials) (TokenPayload, error)
}

// fetchJSON executes the request and decodes a JSON object response. Non-2xx
// responses are returned as errors with the status code, not the body.
func fetchJSON(httpClient *http.Client, req *http.Request) (map[string]interface{}, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s failed with status %d", req.URL.Host, resp.StatusCode)
	}

	result := make(map[string]interface{})
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return result, nil
}

// objectList extracts a []map[string]interface{} from a decoded response field
func objectList(payload map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := payload[key].([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}
