/**
 * @description
 * Market-data provider clients for the enrichment pipeline: a live quote
 * feed, a fundamentals service for market-cap classification, and the public
 * NAV history API for mutual funds. Each is a small typed wrapper over a
 * base URL and a timeout-bounded http.Client; the pipeline consumes them
 * through narrow interfaces so tests can substitute fixtures.
 */
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Quote is a live price snapshot for one listed instrument.
type Quote struct {
	Price            float64 `json:"price"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
	Stale            bool    `json:"stale,omitempty"`
}

// Classification is the market-cap bucket of one listed company.
type Classification struct {
	Category    string  `json:"category"`
	MarketCapCr float64 `json:"market_cap_cr"`
	Stale       bool    `json:"stale,omitempty"`
}

// FundDayChange is the day-over-day NAV movement of one mutual fund scheme.
type FundDayChange struct {
	NAV              float64 `json:"nav"`
	Date             string  `json:"date"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
	Stale            bool    `json:"stale,omitempty"`
}

// QuoteProvider fetches one live quote.
type QuoteProvider interface {
	Quote(ctx context.Context, exchange, symbol string) (*Quote, error)
}

// FundamentalsProvider fetches a company's market capitalization in crores.
type FundamentalsProvider interface {
	MarketCapCr(ctx context.Context, symbol string) (float64, error)
}

// NAVProvider fetches a scheme's NAV history, most recent first.
type NAVProvider interface {
	NAVHistory(ctx context.Context, schemeCode string) ([]NAVPoint, error)
}

// NAVPoint is one published NAV.
type NAVPoint struct {
	Date string
	NAV  float64
}

// Market-cap thresholds in crores: >= 20000 Cr is large cap, >= 5000 Cr mid
// cap, anything below is small cap.
const (
	largeCapFloorCr = 20000
	midCapFloorCr   = 5000
)

// ClassifyMarketCap buckets a market capitalization (in crores) into
// Large/Mid/Small Cap.
func ClassifyMarketCap(marketCapCr float64) string {
	switch {
	case marketCapCr >= largeCapFloorCr:
		return "Large Cap"
	case marketCapCr >= midCapFloorCr:
		return "Mid Cap"
	default:
		return "Small Cap"
	}
}

type providerError struct {
	provider   string
	statusCode int
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s provider: unexpected status %d", e.provider, e.statusCode)
}

func getJSON(ctx context.Context, client *http.Client, provider, reqURL string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &providerError{provider: provider, statusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// QuoteClient reads live quotes from the market-data feed.
type QuoteClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewQuoteClient(baseURL, apiKey string) *QuoteClient {
	return &QuoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *QuoteClient) Quote(ctx context.Context, exchange, symbol string) (*Quote, error) {
	instrument := exchange + ":" + symbol
	reqURL := fmt.Sprintf("%s/quote?i=%s", c.baseURL, url.QueryEscape(instrument))

	var resp struct {
		Data map[string]struct {
			LastPrice float64 `json:"last_price"`
			NetChange float64 `json:"net_change"`
			OHLC      struct {
				Close float64 `json:"close"`
			} `json:"ohlc"`
		} `json:"data"`
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}
	if err := getJSON(ctx, c.client, "quote", reqURL, headers, &resp); err != nil {
		return nil, err
	}
	q, ok := resp.Data[instrument]
	if !ok {
		return nil, fmt.Errorf("quote provider: no data for %s", instrument)
	}

	quote := &Quote{Price: q.LastPrice, DayChange: q.NetChange}
	if q.OHLC.Close != 0 {
		quote.DayChangePercent = q.NetChange / q.OHLC.Close * 100
	}
	return quote, nil
}

// FundamentalsClient reads company fundamentals from the screener service.
type FundamentalsClient struct {
	baseURL string
	client  *http.Client
}

func NewFundamentalsClient(baseURL string) *FundamentalsClient {
	return &FundamentalsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *FundamentalsClient) MarketCapCr(ctx context.Context, symbol string) (float64, error) {
	reqURL := fmt.Sprintf("%s/api/company/%s/", c.baseURL, url.PathEscape(symbol))

	var resp struct {
		MarketCap float64 `json:"market_cap"`
	}
	if err := getJSON(ctx, c.client, "fundamentals", reqURL, nil, &resp); err != nil {
		return 0, err
	}
	if resp.MarketCap <= 0 {
		return 0, fmt.Errorf("fundamentals provider: no market cap for %s", symbol)
	}
	return resp.MarketCap, nil
}

// MFAPIClient reads mutual fund NAV history from the public mfapi service.
// The API publishes NAVs as strings, latest first.
type MFAPIClient struct {
	baseURL string
	client  *http.Client
}

func NewMFAPIClient(baseURL string) *MFAPIClient {
	return &MFAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *MFAPIClient) NAVHistory(ctx context.Context, schemeCode string) ([]NAVPoint, error) {
	reqURL := fmt.Sprintf("%s/mf/%s", c.baseURL, url.PathEscape(schemeCode))

	var resp struct {
		Data []struct {
			Date string `json:"date"`
			NAV  string `json:"nav"`
		} `json:"data"`
	}
	if err := getJSON(ctx, c.client, "mfapi", reqURL, nil, &resp); err != nil {
		return nil, err
	}

	points := make([]NAVPoint, 0, len(resp.Data))
	for _, d := range resp.Data {
		nav, err := strconv.ParseFloat(strings.TrimSpace(d.NAV), 64)
		if err != nil {
			continue
		}
		points = append(points, NAVPoint{Date: d.Date, NAV: nav})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("mfapi provider: no NAV history for scheme %s", schemeCode)
	}
	return points, nil
}
