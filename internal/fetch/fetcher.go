/**
 * @description
 * Concurrent per-broker holdings fetch. Every authenticated broker is called
 * in its own goroutine; a failure on one broker produces a manifest entry and
 * never blanks out or blocks the others. Only broker-native fast fields are
 * pulled here — live prices, classification, and day change are enrichment
 * concerns and must not delay this path.
 */
package fetch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/merge"
	"github.com/investrack/portfolio-service/internal/session"
	"github.com/investrack/portfolio-service/internal/vault"
)

// Source is one broker's holdings read API.
type Source interface {
	BrokerID() string
	Holdings(ctx context.Context, cred *domain.Credential) ([]merge.RawEquity, []merge.RawFund, error)
}

// Result is the joined outcome of a fan-out fetch: normalized holdings plus a
// per-broker manifest. Brokers that are configured but not authenticated are
// simply absent — not an error.
type Result struct {
	Holdings   []domain.Holding
	MFHoldings []domain.MFHolding
	Manifest   []domain.ManifestEntry
	FetchedAt  time.Time
}

// Fetcher pulls raw holdings from every authenticated broker concurrently.
type Fetcher struct {
	vault    *vault.Vault
	sessions *session.Manager
	sources  map[string]Source
}

// NewFetcher creates a fetcher over the given broker sources.
func NewFetcher(v *vault.Vault, sessions *session.Manager, sources ...Source) *Fetcher {
	byID := make(map[string]Source, len(sources))
	for _, s := range sources {
		byID[s.BrokerID()] = s
	}
	return &Fetcher{vault: v, sessions: sessions, sources: byID}
}

type brokerOutcome struct {
	equities []domain.Holding
	funds    []domain.MFHolding
	entry    domain.ManifestEntry
}

// FetchHoldings fans out one read call per authenticated broker and joins the
// results. Tokens known-expired from local metadata are reported as
// token_expired without a doomed provider call.
func (f *Fetcher) FetchHoldings(ctx context.Context, userID string) (*Result, error) {
	creds, corrupted, err := f.vault.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var targets []domain.Credential
	for _, cred := range creds {
		if cred.Status != domain.StatusAuthenticated {
			continue
		}
		if _, ok := f.sources[cred.BrokerID]; !ok {
			continue
		}
		targets = append(targets, cred)
	}

	outcomes := make([]brokerOutcome, len(targets))
	var wg sync.WaitGroup
	for i, cred := range targets {
		wg.Add(1)
		go func(i int, cred domain.Credential) {
			defer wg.Done()
			outcomes[i] = f.fetchOne(ctx, userID, cred)
		}(i, cred)
	}
	wg.Wait()

	result := &Result{FetchedAt: time.Now()}
	for _, out := range outcomes {
		result.Holdings = append(result.Holdings, out.equities...)
		result.MFHoldings = append(result.MFHoldings, out.funds...)
		result.Manifest = append(result.Manifest, out.entry)
	}
	// An authenticated broker whose stored row no longer decrypts must not
	// vanish from the portfolio: it gets a manifest entry like any other
	// per-broker failure.
	for _, c := range corrupted {
		if c.Status != domain.StatusAuthenticated {
			continue
		}
		result.Manifest = append(result.Manifest, domain.ManifestEntry{
			Broker: c.BrokerID,
			Status: domain.FetchCredentialCorrupted,
			Error:  "stored credential cannot be decrypted; re-enter it",
		})
	}
	sort.Slice(result.Manifest, func(i, j int) bool {
		return result.Manifest[i].Broker < result.Manifest[j].Broker
	})
	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, userID string, cred domain.Credential) brokerOutcome {
	var out brokerOutcome

	if !f.sessions.IsTokenValid(&cred) {
		f.rejectToken(ctx, userID, cred.BrokerID)
		out.entry = domain.ManifestEntry{
			Broker: cred.BrokerID,
			Status: domain.FetchTokenExpired,
			Error:  "access token expired; re-authenticate",
		}
		return out
	}

	equities, funds, err := f.sources[cred.BrokerID].Holdings(ctx, &cred)
	if err != nil {
		if brokerapi.IsAuthError(err) {
			f.rejectToken(ctx, userID, cred.BrokerID)
			out.entry = domain.ManifestEntry{
				Broker: cred.BrokerID,
				Status: domain.FetchTokenExpired,
				Error:  "provider rejected the access token; re-authenticate",
			}
			return out
		}
		log.Printf("Holdings fetch failed for user %s broker %s: %v", userID, cred.BrokerID, err)
		out.entry = domain.ManifestEntry{
			Broker: cred.BrokerID,
			Status: domain.FetchUpstreamUnavailable,
			Error:  err.Error(),
		}
		return out
	}

	for _, raw := range equities {
		if raw.Quantity <= 0 {
			continue
		}
		out.equities = append(out.equities, merge.NormalizeEquity(raw, cred.BrokerID))
	}
	for _, raw := range funds {
		if raw.Units <= 0 {
			continue
		}
		out.funds = append(out.funds, merge.NormalizeFund(raw, cred.BrokerID))
	}
	out.entry = domain.ManifestEntry{Broker: cred.BrokerID, Status: domain.FetchOK}
	return out
}

func (f *Fetcher) rejectToken(ctx context.Context, userID, brokerID string) {
	if err := f.sessions.OnTokenRejected(ctx, userID, brokerID); err != nil {
		log.Printf("Failed to record token rejection for user %s broker %s: %v", userID, brokerID, err)
	}
}
