package merge

import (
	"math"
	"testing"

	"github.com/investrack/portfolio-service/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalizeEquity(t *testing.T) {
	h := NormalizeEquity(RawEquity{
		Symbol:   "INFY",
		Exchange: "NSE",
		ISIN:     "INE009A01021",
		Quantity: 10,
		AvgCost:  1500,
	}, "kite")

	if h.Broker != "kite" {
		t.Errorf("broker = %q, want kite", h.Broker)
	}
	if h.Invested != 15000 || h.Value != 15000 {
		t.Errorf("invested=%v value=%v, want 15000 each (value falls back to invested)", h.Invested, h.Value)
	}
	if h.CurrentPrice != nil || h.PnL != nil || h.DayChange != nil {
		t.Error("price-derived fields must stay nil until enrichment")
	}
}

func TestNormalizeFundCategorizesFromSchemeName(t *testing.T) {
	tests := []struct {
		scheme string
		want   string
	}{
		{"Axis Small Cap Fund Direct Growth", "Small Cap"},
		{"HDFC Midcap Opportunities", "Mid Cap"},
		{"SBI Large Cap Fund", "Large Cap"},
		{"Kotak Large and Mid Cap Fund", "Multi Cap"},
		{"Parag Parikh Flexi Cap Fund", "Multi Cap"},
		{"Quant ELSS Tax Saver", "Multi Cap"},
	}
	for _, tc := range tests {
		h := NormalizeFund(RawFund{SchemeCode: "X", SchemeName: tc.scheme, Units: 1, AvgNAV: 10}, "kite")
		if h.MarketCapCategory != tc.want {
			t.Errorf("%q categorized as %q, want %q", tc.scheme, h.MarketCapCategory, tc.want)
		}
	}
}

func TestAcrossBrokersCapitalWeightedMerge(t *testing.T) {
	holdings := []domain.Holding{
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "NSE", Quantity: 10, AvgCost: 100}, "kite"),
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "NSE", Quantity: 5, AvgCost: 130}, "groww"),
	}

	merged := AcrossBrokers(holdings, AllBrokers())
	if len(merged) != 1 {
		t.Fatalf("merged count = %d, want 1", len(merged))
	}

	got := merged[0]
	if got.Quantity != 15 {
		t.Errorf("quantity = %v, want 15", got.Quantity)
	}
	// (10*100 + 5*130) / 15 = 110
	if !almostEqual(got.AvgPrice, 110) {
		t.Errorf("avg price = %v, want 110", got.AvgPrice)
	}
	if got.Invested != 1650 || got.Value != 1650 {
		t.Errorf("invested=%v value=%v, want 1650 each", got.Invested, got.Value)
	}
	if got.Broker != domain.BrokerMultiple {
		t.Errorf("broker = %q, want %q", got.Broker, domain.BrokerMultiple)
	}
	if got.CurrentPrice != nil || got.PnL != nil {
		t.Error("merged position must not carry per-broker price fields")
	}
}

func TestAcrossBrokersDistinctInstrumentsStaySeparate(t *testing.T) {
	holdings := []domain.Holding{
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "NSE", Quantity: 10, AvgCost: 100}, "kite"),
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "BSE", Quantity: 5, AvgCost: 100}, "groww"),
		NormalizeEquity(RawEquity{Symbol: "TCS", Exchange: "NSE", Quantity: 2, AvgCost: 3000}, "kite"),
	}

	merged := AcrossBrokers(holdings, AllBrokers())
	if len(merged) != 3 {
		t.Fatalf("merged count = %d, want 3 (exchange is part of the identity)", len(merged))
	}
	for _, h := range merged {
		if h.Broker == domain.BrokerMultiple {
			t.Errorf("%s:%s tagged multiple with a single contributor", h.Exchange, h.Symbol)
		}
	}
}

func TestAcrossBrokersFilterKeepsSingleBrokerTag(t *testing.T) {
	holdings := []domain.Holding{
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "NSE", Quantity: 10, AvgCost: 100}, "kite"),
		NormalizeEquity(RawEquity{Symbol: "INFY", Exchange: "NSE", Quantity: 5, AvgCost: 130}, "groww"),
	}

	filter, err := NewFilter("kite")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	merged := AcrossBrokers(holdings, filter)
	if len(merged) != 1 {
		t.Fatalf("merged count = %d, want 1", len(merged))
	}
	if merged[0].Broker != "kite" {
		t.Errorf("broker = %q, want kite (only one contributor inside the filter)", merged[0].Broker)
	}
	if merged[0].Quantity != 10 {
		t.Errorf("quantity = %v, want 10 (groww position excluded)", merged[0].Quantity)
	}
}

func TestFundsAcrossBrokers(t *testing.T) {
	holdings := []domain.MFHolding{
		NormalizeFund(RawFund{SchemeCode: "120503", SchemeName: "Axis Small Cap", Folio: "A-1", Units: 100, AvgNAV: 50}, "kite"),
		NormalizeFund(RawFund{SchemeCode: "120503", SchemeName: "Axis Small Cap", Folio: "B-2", Units: 50, AvgNAV: 56}, "groww"),
		NormalizeFund(RawFund{SchemeCode: "118989", SchemeName: "PPFAS Flexi Cap", Units: 10, AvgNAV: 60}, "groww"),
	}

	merged := FundsAcrossBrokers(holdings, AllBrokers())
	if len(merged) != 2 {
		t.Fatalf("merged count = %d, want 2", len(merged))
	}

	// Sorted by scheme code: 118989 first.
	small := merged[1]
	if small.SchemeCode != "120503" {
		t.Fatalf("unexpected order: %q", small.SchemeCode)
	}
	if small.Units != 150 {
		t.Errorf("units = %v, want 150", small.Units)
	}
	// (100*50 + 50*56) / 150 = 52
	if !almostEqual(small.AvgNAV, 52) {
		t.Errorf("avg NAV = %v, want 52", small.AvgNAV)
	}
	if small.Broker != domain.BrokerMultiple {
		t.Errorf("broker = %q, want multiple", small.Broker)
	}
	if small.Folio != nil {
		t.Error("merged fund position must not carry a broker-specific folio")
	}
}

func TestFilterRequiresNonEmptySelection(t *testing.T) {
	if _, err := NewFilter(); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("NewFilter(): got kind %q, want validation", domain.KindOf(err))
	}
}

func TestFilterDeselectLastBrokerRejected(t *testing.T) {
	filter, err := NewFilter("kite", "groww")
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	if err := filter.Deselect("groww"); err != nil {
		t.Fatalf("Deselect groww: %v", err)
	}
	if err := filter.Deselect("kite"); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("deselect last: got kind %q, want validation", domain.KindOf(err))
	}

	// Selection unchanged after the rejected deselect.
	if got := filter.Selected(); len(got) != 1 || got[0] != "kite" {
		t.Errorf("selection after rejected deselect = %v, want [kite]", got)
	}

	// Deselecting a broker that is not selected is a no-op, not an error.
	if err := filter.Deselect("groww"); err != nil {
		t.Errorf("deselect unselected broker: %v", err)
	}
}

func TestFilterIncludesMultipleTag(t *testing.T) {
	filter, _ := NewFilter("kite")
	if !filter.Includes(domain.BrokerMultiple) {
		t.Error("merged positions must always pass the filter")
	}
	if filter.Includes("groww") {
		t.Error("unselected broker passed the filter")
	}
}
