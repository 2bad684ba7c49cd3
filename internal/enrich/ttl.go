package enrich

import "time"

// Cache sources and their TTLs. TTLs mirror the real update cadence of each
// upstream: quotes move constantly and are never served from cache as fresh;
// classification and fund NAVs update once a day.
const (
	SourceQuotes         = "quotes"
	SourceClassification = "classification"
	SourceFundNAV        = "fund_nav"
)

const (
	// TTLQuote of zero means a quote is never considered fresh in cache;
	// every request goes upstream. Cached copies survive only as stale
	// fallbacks for upstream outages.
	TTLQuote = time.Duration(0)

	TTLClassification = 24 * time.Hour
	TTLFundNAV        = 24 * time.Hour
)
