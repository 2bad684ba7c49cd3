package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/enrich"
	"github.com/investrack/portfolio-service/internal/fetch"
	"github.com/investrack/portfolio-service/internal/merge"
	"github.com/investrack/portfolio-service/internal/session"
	"github.com/investrack/portfolio-service/internal/store"
	"github.com/investrack/portfolio-service/internal/vault"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (nopPublisher) Close() {}

type staticQuotes struct {
	quotes map[string]enrich.Quote
}

func (s *staticQuotes) Quote(ctx context.Context, exchange, symbol string) (*enrich.Quote, error) {
	q, ok := s.quotes[exchange+":"+symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	return &q, nil
}

type staticFundamentals struct {
	caps map[string]float64
}

func (s *staticFundamentals) MarketCapCr(ctx context.Context, symbol string) (float64, error) {
	capCr, ok := s.caps[symbol]
	if !ok {
		return 0, errors.New("unknown company")
	}
	return capCr, nil
}

type staticNAV struct {
	history map[string][]enrich.NAVPoint
}

func (s *staticNAV) NAVHistory(ctx context.Context, schemeCode string) ([]enrich.NAVPoint, error) {
	points, ok := s.history[schemeCode]
	if !ok {
		return nil, errors.New("unknown scheme")
	}
	return points, nil
}

func kiteFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/portfolio/holdings":
			json.NewEncoder(w).Encode(map[string]any{"data": []brokerapi.KiteHolding{
				{TradingSymbol: "INFY", Exchange: "NSE", Quantity: 10, AveragePrice: 1500},
			}})
		case "/mf/holdings":
			json.NewEncoder(w).Encode(map[string]any{"data": []brokerapi.KiteMFHolding{
				{TradingSymbol: "120503", Fund: "Axis Small Cap Fund", Folio: "A-1", Quantity: 100, AveragePrice: 50},
			}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
}

func newTestService(t *testing.T, kiteURL string) (*Service, *vault.Vault) {
	t.Helper()
	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	box, err := vault.NewSecretBox(key)
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}
	v := vault.NewVault(store.NewMemoryCredentialRepository(), box, nopPublisher{})

	kite := brokerapi.NewKiteClient(kiteURL)
	groww := brokerapi.NewGrowwClient("https://groww.example")
	sessions := session.NewManager(v, kite, groww, nopPublisher{})
	fetcher := fetch.NewFetcher(v, sessions, fetch.NewKiteSource(kite), fetch.NewGrowwSource(groww))

	pipeline := enrich.NewPipeline(
		enrich.NewCache(enrich.NewMemoryStore()),
		&staticQuotes{quotes: map[string]enrich.Quote{
			"NSE:INFY": {Price: 1600, DayChange: 10, DayChangePercent: 0.63},
		}},
		&staticFundamentals{caps: map[string]float64{"INFY": 650000}},
		&staticNAV{history: map[string][]enrich.NAVPoint{
			"120503": {{Date: "28-08-2026", NAV: 55}, {Date: "27-08-2026", NAV: 54}},
		}},
	)
	return NewService(fetcher, pipeline), v
}

func TestGetPortfolio(t *testing.T) {
	server := kiteFixtureServer(t)
	defer server.Close()

	svc, v := newTestService(t, server.URL)
	ctx := context.Background()
	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.StoreToken(ctx, "user-1", "kite", "token", time.Now()); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	portfolio, err := svc.GetPortfolio(ctx, "user-1", merge.AllBrokers())
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	if len(portfolio.Holdings) != 1 || len(portfolio.MFHoldings) != 1 {
		t.Fatalf("holdings=%d funds=%d, want 1 each", len(portfolio.Holdings), len(portfolio.MFHoldings))
	}

	equity := portfolio.Holdings[0]
	if equity.CurrentPrice == nil || *equity.CurrentPrice != 1600 {
		t.Fatalf("current price = %v, want 1600", equity.CurrentPrice)
	}
	if equity.Value != 16000 {
		t.Errorf("equity value = %v, want 16000", equity.Value)
	}
	if equity.PnL == nil || *equity.PnL != 1000 {
		t.Errorf("equity pnl = %v, want 1000", equity.PnL)
	}
	if equity.MarketCapCategory == nil || *equity.MarketCapCategory != "Large Cap" {
		t.Errorf("market cap category = %v, want Large Cap", equity.MarketCapCategory)
	}

	mf := portfolio.MFHoldings[0]
	if mf.CurrentNAV == nil || *mf.CurrentNAV != 55 {
		t.Fatalf("current NAV = %v, want 55", mf.CurrentNAV)
	}
	if mf.Value != 5500 {
		t.Errorf("fund value = %v, want 5500", mf.Value)
	}
	// 100 units moving 1 rupee of NAV.
	if mf.DayChange == nil || *mf.DayChange != 100 {
		t.Errorf("fund day change = %v, want 100", mf.DayChange)
	}

	summary := portfolio.Summary
	if summary.TotalValue != 21500 {
		t.Errorf("total value = %v, want 21500", summary.TotalValue)
	}
	if summary.TotalInvested != 20000 {
		t.Errorf("total invested = %v, want 20000", summary.TotalInvested)
	}
	if summary.TotalPnL != 1500 {
		t.Errorf("total pnl = %v, want 1500", summary.TotalPnL)
	}
	if summary.HoldingsCount != 1 || summary.MFCount != 1 {
		t.Errorf("counts = %d/%d", summary.HoldingsCount, summary.MFCount)
	}

	// Allocation: 16000 Large Cap vs 5500 Small Cap (from the scheme name).
	alloc := portfolio.Allocation
	if alloc.MarketCap["Large Cap"] != 74.42 {
		t.Errorf("large cap share = %v, want 74.42", alloc.MarketCap["Large Cap"])
	}
	if alloc.MarketCap["Small Cap"] != 25.58 {
		t.Errorf("small cap share = %v, want 25.58", alloc.MarketCap["Small Cap"])
	}
	if alloc.AssetType["Stocks"] != 74.42 || alloc.AssetType["Mutual Funds"] != 25.58 {
		t.Errorf("asset split = %v", alloc.AssetType)
	}

	if snap := svc.Snapshot("user-1"); snap != portfolio {
		t.Error("snapshot does not hold the committed portfolio")
	}
}

func TestGetPortfolioUnknownEnrichmentLeavesFieldsNull(t *testing.T) {
	server := kiteFixtureServer(t)
	defer server.Close()

	svc, v := newTestService(t, server.URL)
	ctx := context.Background()
	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.StoreToken(ctx, "user-1", "kite", "token", time.Now()); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	// Replace the pipeline's providers with ones that know nothing.
	svc.pipeline = enrich.NewPipeline(
		enrich.NewCache(enrich.NewMemoryStore()),
		&staticQuotes{},
		&staticFundamentals{},
		&staticNAV{},
	)

	portfolio, err := svc.GetPortfolio(ctx, "user-1", merge.AllBrokers())
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	equity := portfolio.Holdings[0]
	if equity.CurrentPrice != nil || equity.PnL != nil || equity.MarketCapCategory != nil {
		t.Errorf("unknown enrichment produced values: %+v", equity)
	}
	// Value falls back to invested capital.
	if equity.Value != equity.Invested {
		t.Errorf("value = %v, want invested %v", equity.Value, equity.Invested)
	}
	// Unknown categories are excluded from the market-cap split, the fund's
	// scheme-name category still counts.
	if _, ok := portfolio.Allocation.MarketCap["Unknown"]; ok {
		t.Error("market-cap split contains an Unknown bucket")
	}
	if portfolio.Allocation.MarketCap["Small Cap"] != 100 {
		t.Errorf("small cap share = %v, want 100", portfolio.Allocation.MarketCap["Small Cap"])
	}
}

type slowQuotes struct {
	inner      staticQuotes
	delay      time.Duration
	mu         sync.Mutex
	finishedAt time.Time
}

func (s *slowQuotes) Quote(ctx context.Context, exchange, symbol string) (*enrich.Quote, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.finishedAt = time.Now()
	s.mu.Unlock()
	return s.inner.Quote(ctx, exchange, symbol)
}

type timingFundamentals struct {
	inner     staticFundamentals
	mu        sync.Mutex
	startedAt time.Time
}

func (f *timingFundamentals) MarketCapCr(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	if f.startedAt.IsZero() {
		f.startedAt = time.Now()
	}
	f.mu.Unlock()
	return f.inner.MarketCapCr(ctx, symbol)
}

func TestEnrichmentSourcesRunConcurrently(t *testing.T) {
	server := kiteFixtureServer(t)
	defer server.Close()

	svc, v := newTestService(t, server.URL)
	ctx := context.Background()
	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.StoreToken(ctx, "user-1", "kite", "token", time.Now()); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	quotes := &slowQuotes{
		inner: staticQuotes{quotes: map[string]enrich.Quote{"NSE:INFY": {Price: 1600}}},
		delay: 250 * time.Millisecond,
	}
	fundamentals := &timingFundamentals{
		inner: staticFundamentals{caps: map[string]float64{"INFY": 650000}},
	}
	svc.pipeline = enrich.NewPipeline(
		enrich.NewCache(enrich.NewMemoryStore()),
		quotes,
		fundamentals,
		&staticNAV{history: map[string][]enrich.NAVPoint{
			"120503": {{Date: "28-08-2026", NAV: 55}},
		}},
	)

	portfolio, err := svc.GetPortfolio(ctx, "user-1", merge.AllBrokers())
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}

	equity := portfolio.Holdings[0]
	if equity.CurrentPrice == nil || equity.MarketCapCategory == nil {
		t.Fatalf("enrichment incomplete: %+v", equity)
	}

	// Classification must not queue behind the slow quote feed.
	quotes.mu.Lock()
	quotesDone := quotes.finishedAt
	quotes.mu.Unlock()
	fundamentals.mu.Lock()
	classificationStart := fundamentals.startedAt
	fundamentals.mu.Unlock()
	if !classificationStart.Before(quotesDone) {
		t.Errorf("classification started at %v, after quotes finished at %v",
			classificationStart, quotesDone)
	}
}

func TestRefreshIsLatestWins(t *testing.T) {
	svc := NewService(nil, nil)

	older := svc.beginRefresh("user-1")
	newer := svc.beginRefresh("user-1")

	newerPortfolio := &domain.Portfolio{FetchedAt: time.Now()}
	if !svc.commit("user-1", newer, newerPortfolio) {
		t.Fatal("newer refresh failed to commit")
	}

	// The older refresh finishes late; it must not clobber the newer snapshot.
	olderPortfolio := &domain.Portfolio{FetchedAt: time.Now().Add(-time.Minute)}
	if svc.commit("user-1", older, olderPortfolio) {
		t.Error("older refresh overwrote a newer snapshot")
	}
	if svc.Snapshot("user-1") != newerPortfolio {
		t.Error("snapshot is not the newest committed portfolio")
	}

	// Other users are unaffected by this user's sequence.
	otherSeq := svc.beginRefresh("user-2")
	otherPortfolio := &domain.Portfolio{}
	if !svc.commit("user-2", otherSeq, otherPortfolio) {
		t.Error("commit for a different user was rejected")
	}
}
