package platforms

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sync-server/internal/observability"
)

const shopeeAPIURL = "https://partner.shopeemobile.com"

// ShopeeAdapter talks to the Shopee Open Platform. Shopee has no ad-campaign
// concept here; it reports shop-wide order metrics.
type ShopeeAdapter struct {
	partnerID  string
	partnerKey string
	logger     *observability.Logger
	httpClient *http.Client
	apiURL     string
}

// NewShopeeAdapter creates a Shopee adapter with partner-level credentials
func NewShopeeAdapter(partnerID, partnerKey string, logger *observability.Logger) *ShopeeAdapter {
	return &ShopeeAdapter{
		partnerID:  partnerID,
		partnerKey: partnerKey,
		logger:     logger,
		httpClient: &http.Client{},
		apiURL:     shopeeAPIURL,
	}
}

func (a *ShopeeAdapter) Platform() string {
	return "shopee"
}

// sign produces the partner signature Shopee requires on every call:
// hex HMAC-SHA256 over partner_id|path|timestamp|access_token|shop_id.
func (a *ShopeeAdapter) sign(path string, timestamp int64, accessToken, shopID string) string {
	base := fmt.Sprintf("%s%s%d%s%s", a.partnerID, path, timestamp, accessToken, shopID)
	mac := hmac.New(sha256.New, []byte(a.partnerKey))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

// get issues a signed GET against the open platform
func (a *ShopeeAdapter) get(ctx context.Context, path string, creds Credentials, params url.Values) (map[string]interface{}, error) {
	timestamp := time.Now().Unix()
	accessToken := creds.String("access_token")
	shopID := creds.String("shop_id")

	req, err := http.NewRequestWithContext(ctx, "GET", a.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Add("partner_id", a.partnerID)
	params.Add("timestamp", strconv.FormatInt(timestamp, 10))
	params.Add("access_token", accessToken)
	params.Add("shop_id", shopID)
	params.Add("sign", a.sign(path, timestamp, accessToken, shopID))
	req.URL.RawQuery = params.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, err
	}
	if errCode, ok := payload["error"].(string); ok && errCode != "" {
		return nil, fmt.Errorf("shopee api error %s: %v", errCode, payload["message"])
	}
	return payload, nil
}

func (a *ShopeeAdapter) ValidateCredentials(ctx context.Context, creds Credentials) (bool, error) {
	if creds.String("access_token") == "" || creds.String("shop_id") == "" {
		return false, nil
	}
	if _, err := a.get(ctx, "/api/v2/shop/get_shop_info", creds, nil); err != nil {
		a.logger.InfoWithError(ctx, "shopee credential check failed", err)
		return false, nil
	}
	return true, nil
}

// GetCampaigns returns nothing: Shopee data is shop-wide
func (a *ShopeeAdapter) GetCampaigns(ctx context.Context, creds Credentials, dr DateRange) ([]RawCampaign, error) {
	return nil, nil
}

func (a *ShopeeAdapter) GetInsights(ctx context.Context, creds Credentials, dr DateRange) ([]RawInsight, error) {
	params := url.Values{}
	params.Add("time_range_field", "create_time")
	params.Add("time_from", strconv.FormatInt(dr.Since.Unix(), 10))
	params.Add("time_to", strconv.FormatInt(dr.Until.Unix(), 10))
	params.Add("page_size", "100")

	payload, err := a.get(ctx, "/api/v2/order/get_order_list", creds, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shopee orders: %w", err)
	}

	// Collapse the order list into per-day totals; Shopee reports orders,
	// not pre-aggregated metrics.
	type dayTotals struct {
		orders  int64
		revenue float64
	}
	days := make(map[string]*dayTotals)

	response, _ := payload["response"].(map[string]interface{})
	for _, order := range objectList(response, "order_list") {
		createTime, _ := order["create_time"].(float64)
		day := time.Unix(int64(createTime), 0).UTC().Format("2006-01-02")
		totals, ok := days[day]
		if !ok {
			totals = &dayTotals{}
			days[day] = totals
		}
		totals.orders++
		if amount, ok := order["total_amount"].(float64); ok {
			totals.revenue += amount
		}
	}

	var insights []RawInsight
	for day, totals := range days {
		insights = append(insights, RawInsight{
			Platform: a.Platform(),
			Source:   "shopee_orders",
			Fields: map[string]interface{}{
				"date":    day,
				"orders":  totals.orders,
				"revenue": totals.revenue,
			},
		})
	}
	return insights, nil
}

func (a *ShopeeAdapter) GetAuthURL(redirectURI, state string) (string, error) {
	if a.partnerID == "" {
		return "", ErrOAuthNotSupported
	}
	path := "/api/v2/shop/auth_partner"
	timestamp := time.Now().Unix()

	q := url.Values{}
	q.Add("partner_id", a.partnerID)
	q.Add("timestamp", strconv.FormatInt(timestamp, 10))
	q.Add("sign", a.sign(path, timestamp, "", ""))
	// Shopee carries no state parameter; the state token rides on the
	// redirect URI so the callback can still be validated.
	redirect := redirectURI
	if u, err := url.Parse(redirectURI); err == nil {
		query := u.Query()
		query.Set("state", state)
		u.RawQuery = query.Encode()
		redirect = u.String()
	}
	q.Add("redirect", redirect)
	return a.apiURL + path + "?" + q.Encode(), nil
}

func (a *ShopeeAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenPayload, error) {
	path := "/api/v2/auth/token/get"
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("partner_id", a.partnerID)
	q.Add("timestamp", strconv.FormatInt(timestamp, 10))
	q.Add("sign", a.sign(path, timestamp, "", ""))
	q.Add("code", code)
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange shopee code: %w", err)
	}
	return TokenPayload(payload), nil
}

func (a *ShopeeAdapter) RefreshToken(ctx context.Context, creds Credentials) (TokenPayload, error) {
	path := "/api/v2/auth/access_token/get"
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("partner_id", a.partnerID)
	q.Add("timestamp", strconv.FormatInt(timestamp, 10))
	q.Add("sign", a.sign(path, timestamp, "", ""))
	q.Add("refresh_token", creds.String("refresh_token"))
	q.Add("shop_id", creds.String("shop_id"))
	req.URL.RawQuery = q.Encode()

	payload, err := fetchJSON(a.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh shopee token: %w", err)
	}
	return TokenPayload(payload), nil
}
