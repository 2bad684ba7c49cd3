package brokerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// GrowwClient talks to the Groww trade API (derived-secret login).
type GrowwClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGrowwClient creates a new Groww API client.
func NewGrowwClient(baseURL string) *GrowwClient {
	return &GrowwClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

// GrowwHolding is a raw holding as returned by the provider. Groww holdings
// carry no market price; pricing is an enrichment concern.
type GrowwHolding struct {
	ISIN          string  `json:"isin"`
	TradingSymbol string  `json:"trading_symbol"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
}

// AccessToken performs the non-interactive login: the API key plus a
// time-based one-time code derived from the stored secret.
func (c *GrowwClient) AccessToken(ctx context.Context, apiKey, totpCode string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"key_type": "approval",
		"totp":     totpCode,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Content-Type":  "application/json",
	}
	err = doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/token/api/access",
		headers, bytes.NewReader(payload), &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Message: "provider returned no token"}
	}
	return resp.Token, nil
}

// Holdings fetches the user's holdings with the stored access token.
func (c *GrowwClient) Holdings(ctx context.Context, accessToken string) ([]GrowwHolding, error) {
	var resp struct {
		Payload struct {
			Holdings []GrowwHolding `json:"holdings"`
		} `json:"payload"`
	}
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Accept":        "application/json",
	}
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/v1/holdings/user",
		headers, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Payload.Holdings, nil
}
