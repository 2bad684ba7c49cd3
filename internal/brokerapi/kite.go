package brokerapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// KiteClient talks to the Kite Connect API (redirect/exchange login).
type KiteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewKiteClient creates a new Kite Connect API client.
func NewKiteClient(baseURL string) *KiteClient {
	return &KiteClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

// KiteHolding is a raw equity holding as returned by the provider.
type KiteHolding struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	ISIN          string  `json:"isin"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
}

// KiteMFHolding is a raw mutual fund holding as returned by the provider.
type KiteMFHolding struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Fund          string  `json:"fund"`
	Folio         string  `json:"folio"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
}

// LoginURL builds the provider authorization URL the user is redirected to.
func (c *KiteClient) LoginURL(apiKey string) string {
	return fmt.Sprintf("%s/connect/login?v=3&api_key=%s", c.baseURL, url.QueryEscape(apiKey))
}

// ExchangeChecksum is SHA-256(api_key + request_token + api_secret), required
// by the provider's token endpoint to prove possession of the secret.
func ExchangeChecksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// GenerateSession exchanges a one-time request token for an access token.
func (c *KiteClient) GenerateSession(ctx context.Context, apiKey, apiSecret, requestToken string) (string, error) {
	form := url.Values{}
	form.Set("api_key", apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", ExchangeChecksum(apiKey, requestToken, apiSecret))

	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	headers := map[string]string{
		"Content-Type":   "application/x-www-form-urlencoded",
		"X-Kite-Version": "3",
	}
	err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/session/token",
		headers, strings.NewReader(form.Encode()), &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.AccessToken == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Message: "provider returned no access token"}
	}
	return resp.Data.AccessToken, nil
}

func (c *KiteClient) authHeaders(apiKey, accessToken string) map[string]string {
	return map[string]string{
		"Authorization":  "token " + apiKey + ":" + accessToken,
		"X-Kite-Version": "3",
	}
}

// Holdings fetches the user's equity holdings. Only broker-native fields are
// requested; live prices come from the enrichment pipeline.
func (c *KiteClient) Holdings(ctx context.Context, apiKey, accessToken string) ([]KiteHolding, error) {
	var resp struct {
		Data []KiteHolding `json:"data"`
	}
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/portfolio/holdings",
		c.authHeaders(apiKey, accessToken), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// MFHoldings fetches the user's mutual fund holdings.
func (c *KiteClient) MFHoldings(ctx context.Context, apiKey, accessToken string) ([]KiteMFHolding, error) {
	var resp struct {
		Data []KiteMFHolding `json:"data"`
	}
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/mf/holdings",
		c.authHeaders(apiKey, accessToken), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
