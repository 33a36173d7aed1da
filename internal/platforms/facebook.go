package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sync-server/internal/observability"
)

const (
	facebookGraphURL = "https://graph.facebook.com/v19.0"
	facebookAuthURL  = "https://www.facebook.com/v19.0/dialog/oauth"
)

// FacebookAdapter talks to the Facebook Marketing API
type FacebookAdapter struct {
	clientID     string
	clientSecret string
	logger       *observability.Logger
	httpClient   *http.Client
	graphURL     string
}

// NewFacebookAdapter creates a Facebook adapter with app-level credentials
func NewFacebookAdapter(clientID, clientSecret string, logger *observability.Logger) *FacebookAdapter {
	return &FacebookAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		httpClient:   &http.Client{},
		graphURL:     facebookGraphURL,
	}
}

func (a *FacebookAdapter) Platform() string {
	return "facebook"
}

func (a *FacebookAdapter) ValidateCredentials(ctx context.Context, creds Credentials) (bool, error) {
	if creds.String("access_token") == "" || creds.String("ad_account_id") == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/me?access_token=%s", a.graphURL, url.QueryEscape(creds.String("access_token"))), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if _, err := fetchJSON(a.httpClient, req); err != nil {
		a.logger.InfoWithError(ctx, "facebook credential check failed", err)
		return false, nil
	}
	return true, nil
}

func (a *FacebookAdapter) GetCampaigns(ctx context.Context, creds Credentials, dr DateRange) ([]RawCampaign, error) {
	endpoint := fmt.Sprintf("%s/act_%s/campaigns", a.graphURL, creds.String("ad_account_id"))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("fields", "id,name,status,objective,daily_budget,start_time,stop_time")
	q.Add("access_token", creds.String("access_token"))
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch facebook campaigns: %w", err)
	}

	var campaigns []RawCampaign
	for _, fields := range objectList(payload, "data") {
		campaigns = append(campaigns, RawCampaign{Platform: a.Platform(), Fields: fields})
	}
	return campaigns, nil
}

func (a *FacebookAdapter) GetInsights(ctx context.Context, creds Credentials, dr DateRange) ([]RawInsight, error) {
	endpoint := fmt.Sprintf("%s/act_%s/insights", a.graphURL, creds.String("ad_account_id"))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("level", "campaign")
	q.Add("time_increment", "1")
	q.Add("fields", "campaign_id,date_start,impressions,clicks,spend,actions")
	q.Add("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		dr.Since.Format("2006-01-02"), dr.Until.Format("2006-01-02")))
	q.Add("access_token", creds.String("access_token"))
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch facebook insights: %w", err)
	}

	var insights []RawInsight
	for _, fields := range objectList(payload, "data") {
		insights = append(insights, RawInsight{Platform: a.Platform(), Source: "facebook_ads", Fields: fields})
	}
	return insights, nil
}

func (a *FacebookAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	if a.clientID == "" {
		return "", ErrOAuthNotSupported
	}
	q := url.Values{}
	q.Add("client_id", a.clientID)
	q.Add("redirect_uri", redirectURI)
	q.Add("state", state)
	q.Add("scope", "ads_read,ads_management")
	q.Add("response_type", "code")
	return facebookAuthURL + "?" + q.Encode(), nil
}

func (a *FacebookAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.graphURL+"/oauth/access_token", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("client_id", a.clientID)
	q.Add("client_secret", a.clientSecret)
	q.Add("redirect_uri", redirectURI)
	q.Add("code", code)
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange facebook code: %w", err)
	}
	return TokenPayload(payload), nil
}

func (a *FacebookAdapter) RefreshToken(ctx context.Context, creds Credentials) (TokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.graphURL+"/oauth/access_token", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Facebook long-lived token exchange
	q := req.URL.Query()
	q.Add("grant_type", "fb_exchange_token")
	q.Add("client_id", a.clientID)
	q.Add("client_secret", a.clientSecret)
	q.Add("fb_exchange_token", creds.String("access_token"))
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh facebook token: %w", err)
	}
	return TokenPayload(payload), nil
}
