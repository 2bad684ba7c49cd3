package merge

import "strings"

// FundMarketCapCategory parses a market-cap category out of a mutual fund
// scheme name. ELSS, flexi cap, and anything uncategorized default to
// "Multi Cap"; combined large-and-mid schemes are treated as multi cap too.
func FundMarketCapCategory(schemeName string) string {
	name := strings.ToUpper(schemeName)

	if strings.Contains(name, "SMALL CAP") || strings.Contains(name, "SMALLCAP") {
		return "Small Cap"
	}
	if strings.Contains(name, "MID CAP") || strings.Contains(name, "MIDCAP") {
		if strings.Contains(name, "LARGE") {
			return "Multi Cap"
		}
		return "Mid Cap"
	}
	if strings.Contains(name, "LARGE CAP") || strings.Contains(name, "LARGECAP") {
		if strings.Contains(name, "MID") {
			return "Multi Cap"
		}
		return "Large Cap"
	}
	return "Multi Cap"
}
