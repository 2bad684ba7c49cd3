/**
 * @description
 * Login protocol variants. The set is closed: a broker either speaks the
 * browser-redirect one-time-code exchange or the non-interactive derived
 * secret flow. Adding a broker means adding a catalog entry and, at most,
 * one protocol implementation here — the fetch, merge, and enrichment cores
 * never change.
 */
package session

import (
	"context"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/domain"
)

// exchanger is the redirect/exchange capability: hand the user a provider
// login URL, then swap the resulting one-time code for an access token.
type exchanger interface {
	loginURL(apiKey string) string
	exchange(ctx context.Context, cred *domain.Credential, oneTimeCode string) (string, error)
}

// autoAuthenticator is the derived-secret capability: log in without user
// interaction using a time-based one-time code computed from the stored secret.
type autoAuthenticator interface {
	authenticate(ctx context.Context, cred *domain.Credential, now time.Time) (string, error)
}

type redirectProtocol struct {
	client *brokerapi.KiteClient
}

func (p *redirectProtocol) loginURL(apiKey string) string {
	return p.client.LoginURL(apiKey)
}

func (p *redirectProtocol) exchange(ctx context.Context, cred *domain.Credential, oneTimeCode string) (string, error) {
	token, err := p.client.GenerateSession(ctx, cred.APIKey, cred.APISecret, oneTimeCode)
	if err != nil {
		if brokerapi.IsAuthError(err) {
			return "", domain.Wrap(domain.KindInvalidExchange,
				"provider rejected the one-time code (expired, reused, or malformed)", err)
		}
		return "", domain.Wrap(domain.KindUpstreamUnavailable, "provider token exchange failed", err)
	}
	return token, nil
}

const totpPeriod = 30 * time.Second

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type derivedSecretProtocol struct {
	client *brokerapi.GrowwClient
}

// authenticate computes the current time step's code and logs in. If the
// provider rejects it, one retry is made with the previous step's code to
// tolerate small clock drift between us and the provider.
func (p *derivedSecretProtocol) authenticate(ctx context.Context, cred *domain.Credential, now time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(cred.APISecret, now, totpOpts)
	if err != nil {
		return "", domain.Wrap(domain.KindCredentialError, "stored secret is not a valid one-time-code seed", err)
	}

	token, err := p.client.AccessToken(ctx, cred.APIKey, code)
	if err == nil {
		return token, nil
	}
	if !brokerapi.IsAuthError(err) {
		return "", domain.Wrap(domain.KindUpstreamUnavailable, "provider login failed", err)
	}

	// Clock drift: retry once against the adjacent time step.
	prevCode, genErr := totp.GenerateCodeCustom(cred.APISecret, now.Add(-totpPeriod), totpOpts)
	if genErr != nil {
		return "", domain.Wrap(domain.KindCodeMismatch, "provider rejected the derived one-time code", err)
	}
	token, retryErr := p.client.AccessToken(ctx, cred.APIKey, prevCode)
	if retryErr == nil {
		return token, nil
	}
	if brokerapi.IsAuthError(retryErr) {
		return "", domain.Wrap(domain.KindCodeMismatch, "provider rejected the derived one-time code", retryErr)
	}
	return "", domain.Wrap(domain.KindUpstreamUnavailable, "provider login failed", retryErr)
}
