/**
 * @description
 * Canonical holdings model. Holdings are ephemeral — recomputed per request,
 * never persisted. A holding's value falls back to invested capital until a
 * live price arrives from enrichment; pnl is defined only once a current
 * price is known.
 */
package domain

import "time"

// BrokerMultiple tags a holding merged from more than one broker.
const BrokerMultiple = "multiple"

// Holding is a canonical equity position.
type Holding struct {
	Symbol            string   `json:"symbol"`
	Exchange          string   `json:"exchange"`
	ISIN              string   `json:"isin,omitempty"`
	Quantity          float64  `json:"quantity"`
	AvgPrice          float64  `json:"avg_price"`
	CurrentPrice      *float64 `json:"current_price"`
	Value             float64  `json:"value"`
	Invested          float64  `json:"invested"`
	PnL               *float64 `json:"pnl"`
	PnLPercent        *float64 `json:"pnl_percent"`
	DayChange         *float64 `json:"day_change"`
	DayChangePercent  *float64 `json:"day_change_percent"`
	MarketCapCategory *string  `json:"market_cap_category"`
	PriceStale        bool     `json:"price_stale,omitempty"`
	Broker            string   `json:"broker"`
}

// MFHolding is a canonical mutual fund position.
type MFHolding struct {
	SchemeCode        string   `json:"scheme_code"`
	SchemeName        string   `json:"scheme_name"`
	FundHouse         *string  `json:"fund_house"`
	Folio             *string  `json:"folio"`
	Units             float64  `json:"units"`
	AvgNAV            float64  `json:"avg_nav"`
	CurrentNAV        *float64 `json:"current_nav"`
	Value             float64  `json:"value"`
	Invested          float64  `json:"invested"`
	PnL               *float64 `json:"pnl"`
	PnLPercent        *float64 `json:"pnl_percent"`
	DayChange         *float64 `json:"day_change"`
	DayChangePercent  *float64 `json:"day_change_percent"`
	MarketCapCategory string   `json:"market_cap_category,omitempty"`
	Broker            string   `json:"broker"`
}

// FetchStatus classifies a per-broker entry in the fetch manifest.
type FetchStatus string

const (
	FetchOK                  FetchStatus = "ok"
	FetchTokenExpired        FetchStatus = "token_expired"
	FetchUpstreamUnavailable FetchStatus = "upstream_unavailable"
	FetchCredentialCorrupted FetchStatus = "credential_corrupted"
	FetchError               FetchStatus = "error"
)

// ManifestEntry records the outcome of one broker's holdings fetch. A failed
// broker produces an entry here instead of failing the whole request.
type ManifestEntry struct {
	Broker string      `json:"broker"`
	Status FetchStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// PortfolioSummary carries aggregate totals across stocks and funds.
type PortfolioSummary struct {
	TotalValue      float64 `json:"total_value"`
	TotalInvested   float64 `json:"total_invested"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	DayPnL          float64 `json:"day_pnl"`
	DayPnLPercent   float64 `json:"day_pnl_percent"`
	StocksValue     float64 `json:"stocks_value"`
	MFValue         float64 `json:"mf_value"`
	StocksInvested  float64 `json:"stocks_invested"`
	MFInvested      float64 `json:"mf_invested"`
	StocksPnL       float64 `json:"stocks_pnl"`
	MFPnL           float64 `json:"mf_pnl"`
	HoldingsCount   int     `json:"holdings_count"`
	MFCount         int     `json:"mf_count"`
}

// AllocationBreakdown holds percentage splits for charts.
type AllocationBreakdown struct {
	MarketCap map[string]float64 `json:"market_cap"`
	AssetType map[string]float64 `json:"asset_type"`
}

// Portfolio is the full, possibly partially-enriched response payload.
type Portfolio struct {
	Summary    PortfolioSummary    `json:"summary"`
	Holdings   []Holding           `json:"holdings"`
	MFHoldings []MFHolding         `json:"mf_holdings"`
	Allocation AllocationBreakdown `json:"allocation"`
	Manifest   []ManifestEntry     `json:"manifest"`
	FetchedAt  time.Time           `json:"fetched_at"`
}
