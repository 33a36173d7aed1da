package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sync-server/internal/observability"
)

const (
	googleAuthURL        = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL       = "https://oauth2.googleapis.com/token"
	googleAnalyticsURL   = "https://analyticsdata.googleapis.com/v1beta"
	googleAnalyticsScope = "https://www.googleapis.com/auth/analytics.readonly"
)

// GoogleAnalyticsAdapter reads traffic metrics from the GA4 Data API
type GoogleAnalyticsAdapter struct {
	clientID     string
	clientSecret string
	logger       *observability.Logger
	httpClient   *http.Client
	apiURL       string
	tokenURL     string
}

func NewGoogleAnalyticsAdapter(clientID, clientSecret string, logger *observability.Logger) *GoogleAnalyticsAdapter {
	return &GoogleAnalyticsAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		httpClient:   &http.Client{},
		apiURL:       googleAnalyticsURL,
		tokenURL:     googleTokenURL,
	}
}

func (a *GoogleAnalyticsAdapter) Platform() string {
	return "google_analytics"
}

// runReport calls the GA4 Data API runReport method for the given property
func (a *GoogleAnalyticsAdapter) runReport(ctx context.Context, creds Credentials, body map[string]interface{}) (map[string]interface{}, error) {
	propertyID := creds.String("property_id")
	if propertyID == "" {
		return nil, fmt.Errorf("google analytics credentials missing property_id")
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/properties/%s:runReport", a.apiURL, propertyID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.String("access_token"))
	req.Header.Set("Content-Type", "application/json")

	return fetchJSON(a.httpClient, req)
}

func (a *GoogleAnalyticsAdapter) ValidateCredentials(ctx context.Context, creds Credentials) (bool, error) {
	if creds.String("access_token") == "" || creds.String("property_id") == "" {
		return false, nil
	}
	_, err := a.runReport(ctx, creds, map[string]interface{}{
		"dateRanges": []map[string]string{{"startDate": "yesterday", "endDate": "yesterday"}},
		"metrics":    []map[string]string{{"name": "sessions"}},
		"limit":      1,
	})
	if err != nil {
		a.logger.InfoWithError(ctx, "google analytics credential check failed", err)
		return false, nil
	}
	return true, nil
}

// GetCampaigns returns nothing: analytics properties carry no campaign objects
func (a *GoogleAnalyticsAdapter) GetCampaigns(ctx context.Context, creds Credentials, dr DateRange) ([]RawCampaign, error) {
	return nil, nil
}

func (a *GoogleAnalyticsAdapter) GetInsights(ctx context.Context, creds Credentials, dr DateRange) ([]RawInsight, error) {
	payload, err := a.runReport(ctx, creds, map[string]interface{}{
		"dateRanges": []map[string]string{{
			"startDate": dr.Since.Format("2006-01-02"),
			"endDate":   dr.Until.Format("2006-01-02"),
		}},
		"dimensions": []map[string]string{{"name": "date"}},
		"metrics": []map[string]string{
			{"name": "sessions"},
			{"name": "activeUsers"},
			{"name": "screenPageViews"},
			{"name": "conversions"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run analytics report: %w", err)
	}

	metricNames := []string{"sessions", "active_users", "page_views", "conversions"}

	var insights []RawInsight
	for _, row := range objectList(payload, "rows") {
		fields := map[string]interface{}{}

		dims, _ := row["dimensionValues"].([]interface{})
		if len(dims) > 0 {
			if dim, ok := dims[0].(map[string]interface{}); ok {
				// GA4 reports dates as YYYYMMDD
				if raw, ok := dim["value"].(string); ok && len(raw) == 8 {
					fields["date"] = raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
				}
			}
		}

		values, _ := row["metricValues"].([]interface{})
		for i, v := range values {
			if i >= len(metricNames) {
				break
			}
			mv, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			raw, _ := mv["value"].(string)
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				fields[metricNames[i]] = n
			}
		}

		insights = append(insights, RawInsight{
			Platform: a.Platform(),
			Source:   "google_analytics",
			Fields:   fields,
		})
	}
	return insights, nil
}

func (a *GoogleAnalyticsAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	if a.clientID == "" {
		return "", ErrOAuthNotSupported
	}
	q := url.Values{}
	q.Add("client_id", a.clientID)
	q.Add("redirect_uri", redirectURI)
	q.Add("response_type", "code")
	q.Add("scope", googleAnalyticsScope)
	q.Add("access_type", "offline")
	q.Add("prompt", "consent")
	q.Add("state", state)
	return googleAuthURL + "?" + q.Encode(), nil
}

func (a *GoogleAnalyticsAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenPayload, error) {
	form := url.Values{}
	form.Add("grant_type", "authorization_code")
	form.Add("code", code)
	form.Add("redirect_uri", redirectURI)
	form.Add("client_id", a.clientID)
	form.Add("client_secret", a.clientSecret)
	return a.tokenRequest(ctx, form)
}

func (a *GoogleAnalyticsAdapter) RefreshToken(ctx context.Context, creds Credentials) (TokenPayload, error) {
	refreshToken := creds.String("refresh_token")
	if refreshToken == "" {
		return nil, fmt.Errorf("google analytics credentials missing refresh_token")
	}
	form := url.Values{}
	form.Add("grant_type", "refresh_token")
	form.Add("refresh_token", refreshToken)
	form.Add("client_id", a.clientID)
	form.Add("client_secret", a.clientSecret)
	return a.tokenRequest(ctx, form)
}

func (a *GoogleAnalyticsAdapter) tokenRequest(ctx context.Context, form url.Values) (TokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to request google token: %w", err)
	}
	return TokenPayload(payload), nil
}
