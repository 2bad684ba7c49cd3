package fetch

import (
	"context"

	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/merge"
)

// KiteSource adapts the Kite Connect client to the fetch layer.
type KiteSource struct {
	client *brokerapi.KiteClient
}

func NewKiteSource(client *brokerapi.KiteClient) *KiteSource {
	return &KiteSource{client: client}
}

func (s *KiteSource) BrokerID() string { return "kite" }

func (s *KiteSource) Holdings(ctx context.Context, cred *domain.Credential) ([]merge.RawEquity, []merge.RawFund, error) {
	raw, err := s.client.Holdings(ctx, cred.APIKey, cred.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	rawMF, err := s.client.MFHoldings(ctx, cred.APIKey, cred.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	equities := make([]merge.RawEquity, 0, len(raw))
	for _, h := range raw {
		equities = append(equities, merge.RawEquity{
			Symbol:   h.TradingSymbol,
			Exchange: h.Exchange,
			ISIN:     h.ISIN,
			Quantity: h.Quantity,
			AvgCost:  h.AveragePrice,
		})
	}
	funds := make([]merge.RawFund, 0, len(rawMF))
	for _, h := range rawMF {
		funds = append(funds, merge.RawFund{
			SchemeCode: h.TradingSymbol,
			SchemeName: h.Fund,
			Folio:      h.Folio,
			Units:      h.Quantity,
			AvgNAV:     h.AveragePrice,
		})
	}
	return equities, funds, nil
}

// GrowwSource adapts the Groww client to the fetch layer. Groww reports no
// exchange on holdings; NSE is assumed, matching the provider's default
// listing venue.
type GrowwSource struct {
	client *brokerapi.GrowwClient
}

func NewGrowwSource(client *brokerapi.GrowwClient) *GrowwSource {
	return &GrowwSource{client: client}
}

func (s *GrowwSource) BrokerID() string { return "groww" }

func (s *GrowwSource) Holdings(ctx context.Context, cred *domain.Credential) ([]merge.RawEquity, []merge.RawFund, error) {
	raw, err := s.client.Holdings(ctx, cred.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	equities := make([]merge.RawEquity, 0, len(raw))
	for _, h := range raw {
		equities = append(equities, merge.RawEquity{
			Symbol:   h.TradingSymbol,
			Exchange: "NSE",
			ISIN:     h.ISIN,
			Quantity: h.Quantity,
			AvgCost:  h.AveragePrice,
		})
	}
	return equities, nil, nil
}
