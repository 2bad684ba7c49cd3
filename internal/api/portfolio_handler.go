/**
 * @description
 * Portfolio and enrichment endpoints. An optional ?brokers=kite,groww query
 * restricts the merge to a subset of brokers; the subset must be non-empty
 * and name known brokers.
 */
package api

import (
	"net/http"
	"strings"

	"github.com/investrack/portfolio-service/internal/app"
	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/merge"
)

// PortfolioHandler serves holdings, the full portfolio, and the enrichment
// lookups.
type PortfolioHandler struct {
	service *app.Service
}

func NewPortfolioHandler(service *app.Service) *PortfolioHandler {
	return &PortfolioHandler{service: service}
}

func filterFromQuery(r *http.Request) (*merge.Filter, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("brokers"))
	if raw == "" {
		return merge.AllBrokers(), nil
	}

	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := domain.BrokerByID(id); !ok {
			return nil, domain.E(domain.KindValidation, "unknown broker in filter: "+id)
		}
		ids = append(ids, id)
	}
	return merge.NewFilter(ids...)
}

// Holdings handles GET /api/portfolio/holdings: merged canonical holdings
// plus the per-broker fetch manifest, without market data.
func (h *PortfolioHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	view, err := h.service.GetHoldings(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Portfolio handles GET /api/portfolio: the fully enriched portfolio with
// summary and allocation breakdown.
func (h *PortfolioHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	portfolio, err := h.service.GetPortfolio(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, portfolio)
}

// Snapshot handles GET /api/portfolio/snapshot: the most recently built
// portfolio for this user, served from memory without touching any broker.
// 404 until the first full portfolio build completes.
func (h *PortfolioHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	portfolio := h.service.Snapshot(GetUserID(r.Context()))
	if portfolio == nil {
		respondError(w, domain.E(domain.KindNotFound, "no portfolio has been built yet"))
		return
	}
	respondJSON(w, http.StatusOK, portfolio)
}

// Quotes handles GET /api/portfolio/enrichment/quotes.
func (h *PortfolioHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	quotes, err := h.service.QuotesFor(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quotes)
}

// Classifications handles GET /api/portfolio/enrichment/classification.
func (h *PortfolioHandler) Classifications(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	classifications, err := h.service.ClassificationsFor(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, classifications)
}

// FundDayChanges handles GET /api/portfolio/enrichment/fund-day-change.
func (h *PortfolioHandler) FundDayChanges(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	changes, err := h.service.FundDayChangesFor(r.Context(), GetUserID(r.Context()), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, changes)
}
