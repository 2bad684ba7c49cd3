/**
 * @description
 * Normalization and cross-broker merging. Broker-specific records are mapped
 * into the canonical shape first; merging then groups strictly by exact
 * (symbol, exchange) identity — or scheme code for funds. No fuzzy or
 * ISIN-based reconciliation: the same instrument listed under differing
 * symbol conventions across brokers intentionally stays unmerged.
 */
package merge

import (
	"math"
	"sort"

	"github.com/investrack/portfolio-service/internal/domain"
)

// RawEquity is a broker-agnostic raw equity record produced by the fetch layer.
type RawEquity struct {
	Symbol   string
	Exchange string
	ISIN     string
	Quantity float64
	AvgCost  float64
}

// RawFund is a broker-agnostic raw mutual fund record.
type RawFund struct {
	SchemeCode string
	SchemeName string
	Folio      string
	Units      float64
	AvgNAV     float64
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NormalizeEquity maps a raw record into a canonical Holding tagged with its
// broker of origin. Price fields stay nil until enrichment joins them in.
func NormalizeEquity(raw RawEquity, brokerID string) domain.Holding {
	invested := raw.Quantity * raw.AvgCost
	return domain.Holding{
		Symbol:   raw.Symbol,
		Exchange: raw.Exchange,
		ISIN:     raw.ISIN,
		Quantity: raw.Quantity,
		AvgPrice: raw.AvgCost,
		Value:    round2(invested), // falls back to invested until a price is known
		Invested: round2(invested),
		Broker:   brokerID,
	}
}

// NormalizeFund maps a raw record into a canonical MFHolding.
func NormalizeFund(raw RawFund, brokerID string) domain.MFHolding {
	invested := raw.Units * raw.AvgNAV
	h := domain.MFHolding{
		SchemeCode:        raw.SchemeCode,
		SchemeName:        raw.SchemeName,
		Units:             raw.Units,
		AvgNAV:            raw.AvgNAV,
		Value:             round2(invested),
		Invested:          round2(invested),
		MarketCapCategory: FundMarketCapCategory(raw.SchemeName),
		Broker:            brokerID,
	}
	if raw.Folio != "" {
		folio := raw.Folio
		h.Folio = &folio
	}
	return h
}

type equityKey struct {
	symbol   string
	exchange string
}

// AcrossBrokers merges same-instrument equity positions held at different
// brokers, restricted to the active filter. Merged average cost is
// capital-weighted: sum(qty*avg)/sum(qty).
func AcrossBrokers(holdings []domain.Holding, filter *Filter) []domain.Holding {
	groups := make(map[equityKey][]domain.Holding)
	var order []equityKey
	for _, h := range holdings {
		if !filter.Includes(h.Broker) {
			continue
		}
		key := equityKey{symbol: h.Symbol, exchange: h.Exchange}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], h)
	}

	merged := make([]domain.Holding, 0, len(order))
	for _, key := range order {
		merged = append(merged, mergeEquityGroup(groups[key]))
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Symbol != merged[j].Symbol {
			return merged[i].Symbol < merged[j].Symbol
		}
		return merged[i].Exchange < merged[j].Exchange
	})
	return merged
}

func mergeEquityGroup(group []domain.Holding) domain.Holding {
	if len(group) == 1 {
		return group[0]
	}

	out := group[0]
	var totalQty, totalInvested float64
	brokers := map[string]bool{}
	for _, h := range group {
		totalQty += h.Quantity
		totalInvested += h.Quantity * h.AvgPrice
		brokers[h.Broker] = true
		if out.ISIN == "" && h.ISIN != "" {
			out.ISIN = h.ISIN
		}
	}

	out.Quantity = totalQty
	if totalQty > 0 {
		out.AvgPrice = totalInvested / totalQty
	}
	out.Invested = round2(totalInvested)
	out.Value = round2(totalInvested)
	out.CurrentPrice = nil
	out.PnL = nil
	out.PnLPercent = nil
	out.DayChange = nil
	out.DayChangePercent = nil
	if len(brokers) > 1 {
		out.Broker = domain.BrokerMultiple
	}
	return out
}

// FundsAcrossBrokers merges fund positions by exact scheme code.
func FundsAcrossBrokers(holdings []domain.MFHolding, filter *Filter) []domain.MFHolding {
	groups := make(map[string][]domain.MFHolding)
	var order []string
	for _, h := range holdings {
		if !filter.Includes(h.Broker) {
			continue
		}
		if _, seen := groups[h.SchemeCode]; !seen {
			order = append(order, h.SchemeCode)
		}
		groups[h.SchemeCode] = append(groups[h.SchemeCode], h)
	}

	merged := make([]domain.MFHolding, 0, len(order))
	for _, code := range order {
		merged = append(merged, mergeFundGroup(groups[code]))
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SchemeCode < merged[j].SchemeCode
	})
	return merged
}

func mergeFundGroup(group []domain.MFHolding) domain.MFHolding {
	if len(group) == 1 {
		return group[0]
	}

	out := group[0]
	var totalUnits, totalInvested float64
	brokers := map[string]bool{}
	for _, h := range group {
		totalUnits += h.Units
		totalInvested += h.Units * h.AvgNAV
		brokers[h.Broker] = true
	}

	out.Units = totalUnits
	if totalUnits > 0 {
		out.AvgNAV = totalInvested / totalUnits
	}
	out.Invested = round2(totalInvested)
	out.Value = round2(totalInvested)
	out.CurrentNAV = nil
	out.PnL = nil
	out.PnLPercent = nil
	out.DayChange = nil
	out.DayChangePercent = nil
	out.Folio = nil // folios are broker-specific; a merged position has none
	if len(brokers) > 1 {
		out.Broker = domain.BrokerMultiple
	}
	return out
}
