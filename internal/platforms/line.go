package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sync-server/internal/observability"
)

const (
	lineAPIURL   = "https://api.line.me"
	lineAuthURL  = "https://access.line.me/oauth2/v2.1/authorize"
	lineTokenURL = "https://api.line.me/oauth2/v2.1/token"
)

// LineAdapter talks to the LINE Messaging API. LINE has no campaign concept;
// it reports account-wide message and follower statistics.
type LineAdapter struct {
	clientID     string
	clientSecret string
	logger       *observability.Logger
	httpClient   *http.Client
	apiURL       string
}

// NewLineAdapter creates a LINE adapter with channel-level credentials
func NewLineAdapter(clientID, clientSecret string, logger *observability.Logger) *LineAdapter {
	return &LineAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		httpClient:   &http.Client{},
		apiURL:       lineAPIURL,
	}
}

func (a *LineAdapter) Platform() string {
	return "line"
}

// get issues an authenticated GET against the messaging API
func (a *LineAdapter) get(ctx context.Context, path, accessToken string, params url.Values) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return fetchJSON(a.httpClient, req)
}

func (a *LineAdapter) ValidateCredentials(ctx context.Context, creds Credentials) (bool, error) {
	if creds.String("channel_access_token") == "" {
		return false, nil
	}
	if _, err := a.get(ctx, "/v2/bot/info", creds.String("channel_access_token"), nil); err != nil {
		a.logger.InfoWithError(ctx, "line credential check failed", err)
		return false, nil
	}
	return true, nil
}

// GetCampaigns returns nothing: LINE data is advertiser-wide
func (a *LineAdapter) GetCampaigns(ctx context.Context, creds Credentials, dr DateRange) ([]RawCampaign, error) {
	return nil, nil
}

func (a *LineAdapter) GetInsights(ctx context.Context, creds Credentials, dr DateRange) ([]RawInsight, error) {
	token := creds.String("channel_access_token")

	var insights []RawInsight
	for day := dr.Since.UTC().Truncate(24 * time.Hour); !day.After(dr.Until.UTC()); day = day.AddDate(0, 0, 1) {
		date := day.Format("20060102")

		followers, err := a.get(ctx, "/v2/bot/insight/followers", token, url.Values{"date": {date}})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch line follower stats: %w", err)
		}
		deliveries, err := a.get(ctx, "/v2/bot/insight/message/delivery", token, url.Values{"date": {date}})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch line delivery stats: %w", err)
		}

		fields := map[string]interface{}{
			"date":             day.Format("2006-01-02"),
			"followers":        followers["followers"],
			"targeted_reaches": followers["targetedReaches"],
			"broadcast":        deliveries["broadcast"],
			"api_broadcast":    deliveries["apiBroadcast"],
			"api_push":         deliveries["apiPush"],
		}
		insights = append(insights, RawInsight{Platform: a.Platform(), Source: "line_messaging", Fields: fields})
	}
	return insights, nil
}

func (a *LineAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	if a.clientID == "" {
		return "", ErrOAuthNotSupported
	}
	q := url.Values{}
	q.Add("response_type", "code")
	q.Add("client_id", a.clientID)
	q.Add("redirect_uri", redirectURI)
	q.Add("state", state)
	q.Add("scope", "profile openid")
	return lineAuthURL + "?" + q.Encode(), nil
}

func (a *LineAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenPayload, error) {
	form := url.Values{}
	form.Add("grant_type", "authorization_code")
	form.Add("code", code)
	form.Add("redirect_uri", redirectURI)
	form.Add("client_id", a.clientID)
	form.Add("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", lineTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange line code: %w", err)
	}
	return TokenPayload(payload), nil
}

func (a *LineAdapter) RefreshToken(ctx context.Context, creds Credentials) (TokenPayload, error) {
	form := url.Values{}
	form.Add("grant_type", "refresh_token")
	form.Add("refresh_token", creds.String("refresh_token"))
	form.Add("client_id", a.clientID)
	form.Add("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", lineTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh line token: %w", err)
	}
	return TokenPayload(payload), nil
}
