/**
 * @description
 * The session manager drives each broker's login protocol and tracks token
 * validity from locally stored issuance metadata. Validity checks never call
 * the provider; expiry is otherwise discovered as a side effect of a failed
 * use, reported through OnTokenRejected.
 */
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/vault"
	"github.com/investrack/portfolio-service/pkg/rabbitmq"
)

// Manager coordinates broker login protocols against the credential vault.
type Manager struct {
	vault    *vault.Vault
	producer rabbitmq.Publisher
	exchange map[string]exchanger
	derived  map[string]autoAuthenticator
	now      func() time.Time
}

// NewManager wires the protocol implementations for the broker catalog.
func NewManager(v *vault.Vault, kite *brokerapi.KiteClient, groww *brokerapi.GrowwClient, producer rabbitmq.Publisher) *Manager {
	return &Manager{
		vault:    v,
		producer: producer,
		exchange: map[string]exchanger{
			"kite": &redirectProtocol{client: kite},
		},
		derived: map[string]autoAuthenticator{
			"groww": &derivedSecretProtocol{client: groww},
		},
		now: time.Now,
	}
}

// configuredCredential loads the credential and rejects any attempt to run a
// login protocol from the unconfigured state.
func (m *Manager) configuredCredential(ctx context.Context, userID, brokerID string) (*domain.Credential, error) {
	cred, err := m.vault.Get(ctx, userID, brokerID)
	if err != nil {
		return nil, err
	}
	if cred.Status == domain.StatusUnconfigured {
		return nil, domain.E(domain.KindCredentialError, "broker "+brokerID+" is not configured")
	}
	return cred, nil
}

// LoginURL returns the provider authorization URL for redirect-protocol brokers.
func (m *Manager) LoginURL(ctx context.Context, userID, brokerID string) (string, error) {
	proto, ok := m.exchange[brokerID]
	if !ok {
		return "", domain.E(domain.KindValidation, "broker "+brokerID+" does not use redirect login")
	}
	cred, err := m.configuredCredential(ctx, userID, brokerID)
	if err != nil {
		return "", err
	}
	return proto.loginURL(cred.APIKey), nil
}

// CompleteExchange swaps the one-time code from the provider redirect for an
// access token and stores it encrypted.
func (m *Manager) CompleteExchange(ctx context.Context, userID, brokerID, oneTimeCode string) error {
	proto, ok := m.exchange[brokerID]
	if !ok {
		return domain.E(domain.KindValidation, "broker "+brokerID+" does not use redirect login")
	}
	if oneTimeCode == "" {
		return domain.E(domain.KindValidation, "one-time code is required")
	}
	cred, err := m.configuredCredential(ctx, userID, brokerID)
	if err != nil {
		return err
	}

	token, err := proto.exchange(ctx, cred, oneTimeCode)
	if err != nil {
		return err
	}
	return m.storeToken(ctx, userID, brokerID, token)
}

// AutoAuthenticate performs the non-interactive derived-secret login.
func (m *Manager) AutoAuthenticate(ctx context.Context, userID, brokerID string) error {
	proto, ok := m.derived[brokerID]
	if !ok {
		return domain.E(domain.KindValidation, "broker "+brokerID+" does not use derived-secret login")
	}
	cred, err := m.configuredCredential(ctx, userID, brokerID)
	if err != nil {
		return err
	}

	token, err := proto.authenticate(ctx, cred, m.now())
	if err != nil {
		return err
	}
	return m.storeToken(ctx, userID, brokerID, token)
}

func (m *Manager) storeToken(ctx context.Context, userID, brokerID, token string) error {
	issuedAt := m.now()
	if err := m.vault.StoreToken(ctx, userID, brokerID, token, issuedAt); err != nil {
		return err
	}
	_ = m.producer.Publish(ctx, rabbitmq.BrokerEventsExchange, "broker.authenticated", domain.BrokerAuthenticatedEvent{
		EventID:         uuid.NewString(),
		UserID:          userID,
		BrokerID:        brokerID,
		AuthenticatedAt: issuedAt.UTC(),
	})
	return nil
}

// tokenExpiry returns the end of a token's validity window: broker tokens
// last until 06:00 the next trading morning.
func tokenExpiry(issuedAt time.Time) time.Time {
	sixAM := time.Date(issuedAt.Year(), issuedAt.Month(), issuedAt.Day(), 6, 0, 0, 0, issuedAt.Location())
	if issuedAt.Hour() >= 6 {
		return sixAM.AddDate(0, 0, 1)
	}
	return sixAM
}

// IsTokenValid consults locally tracked issuance metadata only — never the
// provider.
func (m *Manager) IsTokenValid(cred *domain.Credential) bool {
	if cred == nil || cred.Status != domain.StatusAuthenticated || cred.AccessToken == "" {
		return false
	}
	if cred.TokenIssuedAt == nil {
		return false
	}
	return m.now().Before(tokenExpiry(*cred.TokenIssuedAt))
}

// OnTokenRejected is invoked when a provider call fails with an auth error
// mid-use. It flips the credential back to configured and emits the
// token_expired signal so the caller can prompt re-authentication for exactly
// this broker.
func (m *Manager) OnTokenRejected(ctx context.Context, userID, brokerID string) error {
	if err := m.vault.ClearToken(ctx, userID, brokerID); err != nil {
		return err
	}
	_ = m.producer.Publish(ctx, rabbitmq.BrokerEventsExchange, "broker.token_expired", domain.TokenExpiredEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		BrokerID:   brokerID,
		DetectedAt: m.now().UTC(),
	})
	return nil
}

// Logout ends the broker session, returning the credential to configured.
func (m *Manager) Logout(ctx context.Context, userID, brokerID string) error {
	if _, ok := domain.BrokerByID(brokerID); !ok {
		return domain.E(domain.KindNotFound, "unknown broker "+brokerID)
	}
	return m.vault.ClearToken(ctx, userID, brokerID)
}

// LogoutAll ends every broker session for the user.
func (m *Manager) LogoutAll(ctx context.Context, userID string) error {
	return m.vault.ClearAllTokens(ctx, userID)
}
