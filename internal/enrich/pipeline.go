/**
 * @description
 * Enrichment pipeline: joins live quotes, market-cap classification, and fund
 * NAV day change onto portfolio instruments. Each instrument is resolved in
 * its own goroutine through the cache; one instrument's upstream failure
 * leaves only its own entry unknown (nil), never the batch.
 */
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// fetchConcurrency bounds simultaneous upstream calls per batch.
const fetchConcurrency = 8

// Pipeline resolves enrichment data for batches of instruments.
type Pipeline struct {
	cache        *Cache
	quotes       QuoteProvider
	fundamentals FundamentalsProvider
	nav          NAVProvider
}

func NewPipeline(cache *Cache, quotes QuoteProvider, fundamentals FundamentalsProvider, nav NAVProvider) *Pipeline {
	return &Pipeline{cache: cache, quotes: quotes, fundamentals: fundamentals, nav: nav}
}

// InstrumentKey identifies one listed instrument for quote lookups.
type InstrumentKey struct {
	Exchange string
	Symbol   string
}

func (k InstrumentKey) String() string {
	return k.Exchange + ":" + k.Symbol
}

// Quotes resolves live quotes for the given instruments, keyed
// "EXCHANGE:SYMBOL". Instruments whose quote cannot be resolved map to nil.
func (p *Pipeline) Quotes(ctx context.Context, keys []InstrumentKey) map[string]*Quote {
	results := make(map[string]*Quote, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchConcurrency)

	seen := map[string]bool{}
	for _, key := range keys {
		id := key.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		results[id] = nil

		wg.Add(1)
		go func(key InstrumentKey, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, stale, err := p.cache.GetOrFetch(ctx, SourceQuotes, id, TTLQuote, func(ctx context.Context) (any, error) {
				return p.quotes.Quote(ctx, key.Exchange, key.Symbol)
			})
			if err != nil {
				log.Printf("Quote unavailable for %s: %v", id, err)
				return
			}
			var quote Quote
			if err := json.Unmarshal(data, &quote); err != nil {
				log.Printf("Malformed cached quote for %s: %v", id, err)
				return
			}
			quote.Stale = stale
			mu.Lock()
			results[id] = &quote
			mu.Unlock()
		}(key, id)
	}
	wg.Wait()
	return results
}

// Classifications resolves market-cap categories for the given equity
// symbols. Symbols that cannot be classified map to nil, never to a zero
// bucket.
func (p *Pipeline) Classifications(ctx context.Context, symbols []string) map[string]*Classification {
	results := make(map[string]*Classification, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchConcurrency)

	seen := map[string]bool{}
	for _, symbol := range symbols {
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		results[symbol] = nil

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, stale, err := p.cache.GetOrFetch(ctx, SourceClassification, symbol, TTLClassification, func(ctx context.Context) (any, error) {
				capCr, err := p.fundamentals.MarketCapCr(ctx, symbol)
				if err != nil {
					return nil, err
				}
				return &Classification{Category: ClassifyMarketCap(capCr), MarketCapCr: capCr}, nil
			})
			if err != nil {
				log.Printf("Classification unavailable for %s: %v", symbol, err)
				return
			}
			var cls Classification
			if err := json.Unmarshal(data, &cls); err != nil {
				log.Printf("Malformed cached classification for %s: %v", symbol, err)
				return
			}
			cls.Stale = stale
			mu.Lock()
			results[symbol] = &cls
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

// FundDayChanges resolves day-over-day NAV movement for the given scheme
// codes. Schemes with fewer than two published NAVs report a zero change at
// the latest NAV; schemes that cannot be resolved map to nil.
func (p *Pipeline) FundDayChanges(ctx context.Context, schemeCodes []string) map[string]*FundDayChange {
	results := make(map[string]*FundDayChange, len(schemeCodes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchConcurrency)

	seen := map[string]bool{}
	for _, code := range schemeCodes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		results[code] = nil

		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, stale, err := p.cache.GetOrFetch(ctx, SourceFundNAV, code, TTLFundNAV, func(ctx context.Context) (any, error) {
				points, err := p.nav.NAVHistory(ctx, code)
				if err != nil {
					return nil, err
				}
				// A provider may report a scheme with no published NAVs yet;
				// treat it like any other resolution failure.
				if len(points) == 0 {
					return nil, fmt.Errorf("no NAV history published for scheme %s", code)
				}
				return fundDayChangeFromHistory(points), nil
			})
			if err != nil {
				log.Printf("NAV history unavailable for scheme %s: %v", code, err)
				return
			}
			var change FundDayChange
			if err := json.Unmarshal(data, &change); err != nil {
				log.Printf("Malformed cached NAV change for scheme %s: %v", code, err)
				return
			}
			change.Stale = stale
			mu.Lock()
			results[code] = &change
			mu.Unlock()
		}(code)
	}
	wg.Wait()
	return results
}

func fundDayChangeFromHistory(points []NAVPoint) *FundDayChange {
	latest := points[0]
	change := &FundDayChange{NAV: latest.NAV, Date: latest.Date}
	if len(points) > 1 && points[1].NAV != 0 {
		change.DayChange = latest.NAV - points[1].NAV
		change.DayChangePercent = change.DayChange / points[1].NAV * 100
	}
	return change
}
