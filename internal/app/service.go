/**
 * @description
 * Portfolio orchestration. Composes the fetch, merge, and enrichment layers
 * into the operations the API exposes: a fast holdings read (broker-native
 * fields only) and a full portfolio build with live prices, classification,
 * fund NAV day change, aggregate summary, and allocation breakdown.
 *
 * Refreshes are latest-wins: each build takes a per-user sequence number
 * before fetching, and a slow build that completes after a newer one started
 * does not overwrite the newer committed snapshot.
 */
package app

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/enrich"
	"github.com/investrack/portfolio-service/internal/fetch"
	"github.com/investrack/portfolio-service/internal/merge"
)

// HoldingsView is the fast read: merged canonical holdings plus the
// per-broker fetch manifest, without market data.
type HoldingsView struct {
	Holdings   []domain.Holding       `json:"holdings"`
	MFHoldings []domain.MFHolding     `json:"mf_holdings"`
	Manifest   []domain.ManifestEntry `json:"manifest"`
	FetchedAt  time.Time              `json:"fetched_at"`
}

// Service is the application facade over fetch, merge, and enrichment.
type Service struct {
	fetcher  *fetch.Fetcher
	pipeline *enrich.Pipeline

	mu        sync.Mutex
	seq       map[string]uint64
	committed map[string]snapshot
}

type snapshot struct {
	seq       uint64
	portfolio *domain.Portfolio
}

func NewService(fetcher *fetch.Fetcher, pipeline *enrich.Pipeline) *Service {
	return &Service{
		fetcher:   fetcher,
		pipeline:  pipeline,
		seq:       map[string]uint64{},
		committed: map[string]snapshot{},
	}
}

// GetHoldings fetches and merges holdings across the filtered brokers. No
// market-data calls are made on this path.
func (s *Service) GetHoldings(ctx context.Context, userID string, filter *merge.Filter) (*HoldingsView, error) {
	result, err := s.fetcher.FetchHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &HoldingsView{
		Holdings:   merge.AcrossBrokers(result.Holdings, filter),
		MFHoldings: merge.FundsAcrossBrokers(result.MFHoldings, filter),
		Manifest:   result.Manifest,
		FetchedAt:  result.FetchedAt,
	}, nil
}

// GetPortfolio builds the fully enriched portfolio: fetch, merge, join
// market data, and derive summary and allocation. Enrichment gaps degrade
// individual fields to null; they never fail the build.
func (s *Service) GetPortfolio(ctx context.Context, userID string, filter *merge.Filter) (*domain.Portfolio, error) {
	seq := s.beginRefresh(userID)

	view, err := s.GetHoldings(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	holdings := view.Holdings
	mfHoldings := view.MFHoldings
	s.enrich(ctx, holdings, mfHoldings)

	portfolio := &domain.Portfolio{
		Summary:    buildSummary(holdings, mfHoldings),
		Holdings:   holdings,
		MFHoldings: mfHoldings,
		Allocation: buildAllocation(holdings, mfHoldings),
		Manifest:   view.Manifest,
		FetchedAt:  view.FetchedAt,
	}
	s.commit(userID, seq, portfolio)
	return portfolio, nil
}

// Snapshot returns the most recently committed portfolio for the user, or
// nil when none has been built yet.
func (s *Service) Snapshot(userID string) *domain.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed[userID].portfolio
}

// QuotesFor resolves live quotes for the user's merged equity holdings.
func (s *Service) QuotesFor(ctx context.Context, userID string, filter *merge.Filter) (map[string]*enrich.Quote, error) {
	view, err := s.GetHoldings(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Quotes(ctx, quoteKeys(view.Holdings)), nil
}

// ClassificationsFor resolves market-cap categories for the user's merged
// equity holdings.
func (s *Service) ClassificationsFor(ctx context.Context, userID string, filter *merge.Filter) (map[string]*enrich.Classification, error) {
	view, err := s.GetHoldings(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(view.Holdings))
	for _, h := range view.Holdings {
		symbols = append(symbols, h.Symbol)
	}
	return s.pipeline.Classifications(ctx, symbols), nil
}

// FundDayChangesFor resolves NAV day change for the user's merged fund
// holdings.
func (s *Service) FundDayChangesFor(ctx context.Context, userID string, filter *merge.Filter) (map[string]*enrich.FundDayChange, error) {
	view, err := s.GetHoldings(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(view.MFHoldings))
	for _, h := range view.MFHoldings {
		codes = append(codes, h.SchemeCode)
	}
	return s.pipeline.FundDayChanges(ctx, codes), nil
}

func (s *Service) beginRefresh(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[userID]++
	return s.seq[userID]
}

func (s *Service) commit(userID string, seq uint64, portfolio *domain.Portfolio) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.committed[userID]; ok && current.seq >= seq {
		return false
	}
	s.committed[userID] = snapshot{seq: seq, portfolio: portfolio}
	return true
}

func quoteKeys(holdings []domain.Holding) []enrich.InstrumentKey {
	keys := make([]enrich.InstrumentKey, 0, len(holdings))
	for _, h := range holdings {
		keys = append(keys, enrich.InstrumentKey{Exchange: h.Exchange, Symbol: h.Symbol})
	}
	return keys
}

// enrich joins all three market-data sources onto the merged holdings. The
// sources are independent and run concurrently: a slow quote feed never
// delays classification or fund NAV resolution.
func (s *Service) enrich(ctx context.Context, holdings []domain.Holding, mfHoldings []domain.MFHolding) {
	var (
		wg              sync.WaitGroup
		quotes          map[string]*enrich.Quote
		classifications map[string]*enrich.Classification
		changes         map[string]*enrich.FundDayChange
	)
	if len(holdings) > 0 {
		symbols := make([]string, 0, len(holdings))
		for _, h := range holdings {
			symbols = append(symbols, h.Symbol)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			quotes = s.pipeline.Quotes(ctx, quoteKeys(holdings))
		}()
		go func() {
			defer wg.Done()
			classifications = s.pipeline.Classifications(ctx, symbols)
		}()
	}
	if len(mfHoldings) > 0 {
		codes := make([]string, 0, len(mfHoldings))
		for _, h := range mfHoldings {
			codes = append(codes, h.SchemeCode)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			changes = s.pipeline.FundDayChanges(ctx, codes)
		}()
	}
	wg.Wait()

	for i := range holdings {
		h := &holdings[i]
		key := enrich.InstrumentKey{Exchange: h.Exchange, Symbol: h.Symbol}.String()
		if q := quotes[key]; q != nil {
			applyQuote(h, q)
		}
		if cls := classifications[h.Symbol]; cls != nil {
			category := cls.Category
			h.MarketCapCategory = &category
		}
	}
	for i := range mfHoldings {
		h := &mfHoldings[i]
		if c := changes[h.SchemeCode]; c != nil {
			applyNAV(h, c)
		}
	}
}

func applyQuote(h *domain.Holding, q *enrich.Quote) {
	price := q.Price
	h.CurrentPrice = &price
	h.Value = round2(h.Quantity * price)
	h.PriceStale = q.Stale

	pnl := round2(h.Value - h.Invested)
	h.PnL = &pnl
	if h.Invested > 0 {
		pct := round2(pnl / h.Invested * 100)
		h.PnLPercent = &pct
	}

	dayChange := round2(q.DayChange * h.Quantity)
	dayChangePct := round2(q.DayChangePercent)
	h.DayChange = &dayChange
	h.DayChangePercent = &dayChangePct
}

func applyNAV(h *domain.MFHolding, c *enrich.FundDayChange) {
	nav := c.NAV
	h.CurrentNAV = &nav
	h.Value = round2(h.Units * nav)

	pnl := round2(h.Value - h.Invested)
	h.PnL = &pnl
	if h.Invested > 0 {
		pct := round2(pnl / h.Invested * 100)
		h.PnLPercent = &pct
	}

	dayChange := round2(c.DayChange * h.Units)
	dayChangePct := round2(c.DayChangePercent)
	h.DayChange = &dayChange
	h.DayChangePercent = &dayChangePct
}

func buildSummary(holdings []domain.Holding, mfHoldings []domain.MFHolding) domain.PortfolioSummary {
	var s domain.PortfolioSummary
	var dayPnL float64

	for _, h := range holdings {
		s.StocksValue += h.Value
		s.StocksInvested += h.Invested
		if h.PnL != nil {
			s.StocksPnL += *h.PnL
		}
		if h.DayChange != nil {
			dayPnL += *h.DayChange
		}
	}
	for _, h := range mfHoldings {
		s.MFValue += h.Value
		s.MFInvested += h.Invested
		if h.PnL != nil {
			s.MFPnL += *h.PnL
		}
		if h.DayChange != nil {
			dayPnL += *h.DayChange
		}
	}

	s.StocksValue = round2(s.StocksValue)
	s.StocksInvested = round2(s.StocksInvested)
	s.StocksPnL = round2(s.StocksPnL)
	s.MFValue = round2(s.MFValue)
	s.MFInvested = round2(s.MFInvested)
	s.MFPnL = round2(s.MFPnL)

	s.TotalValue = round2(s.StocksValue + s.MFValue)
	s.TotalInvested = round2(s.StocksInvested + s.MFInvested)
	s.TotalPnL = round2(s.TotalValue - s.TotalInvested)
	if s.TotalInvested > 0 {
		s.TotalPnLPercent = round2(s.TotalPnL / s.TotalInvested * 100)
	}

	s.DayPnL = round2(dayPnL)
	if prev := s.TotalValue - dayPnL; prev > 0 {
		s.DayPnLPercent = round2(dayPnL / prev * 100)
	}

	s.HoldingsCount = len(holdings)
	s.MFCount = len(mfHoldings)
	return s
}

// buildAllocation derives percentage splits. Equities without a known
// market-cap category are left out of the market-cap split entirely rather
// than reported under a catch-all bucket.
func buildAllocation(holdings []domain.Holding, mfHoldings []domain.MFHolding) domain.AllocationBreakdown {
	capValues := map[string]float64{}
	var capTotal float64

	for _, h := range holdings {
		if h.MarketCapCategory == nil {
			continue
		}
		capValues[*h.MarketCapCategory] += h.Value
		capTotal += h.Value
	}
	for _, h := range mfHoldings {
		if h.MarketCapCategory == "" {
			continue
		}
		capValues[h.MarketCapCategory] += h.Value
		capTotal += h.Value
	}

	alloc := domain.AllocationBreakdown{
		MarketCap: map[string]float64{},
		AssetType: map[string]float64{},
	}
	if capTotal > 0 {
		for category, value := range capValues {
			alloc.MarketCap[category] = round2(value / capTotal * 100)
		}
	}

	var stocksValue, mfValue float64
	for _, h := range holdings {
		stocksValue += h.Value
	}
	for _, h := range mfHoldings {
		mfValue += h.Value
	}
	if total := stocksValue + mfValue; total > 0 {
		alloc.AssetType["Stocks"] = round2(stocksValue / total * 100)
		alloc.AssetType["Mutual Funds"] = round2(mfValue / total * 100)
	}
	return alloc
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
