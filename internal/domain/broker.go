/**
 * @description
 * Broker reference data and credential state. The broker catalog is static:
 * adding a broker means adding a catalog entry and a login protocol
 * implementation in the session package — nothing in the merge or enrichment
 * core changes.
 */
package domain

import "time"

// CredentialStatus tracks where a (user, broker) pair sits in its lifecycle.
type CredentialStatus string

const (
	StatusUnconfigured  CredentialStatus = "unconfigured"
	StatusConfigured    CredentialStatus = "configured"
	StatusAuthenticated CredentialStatus = "authenticated"
)

// LoginMode identifies the login protocol variant a broker speaks.
type LoginMode string

const (
	// LoginRedirect is the browser-redirect + one-time-code exchange flow.
	LoginRedirect LoginMode = "redirect"
	// LoginDerivedSecret is the non-interactive time-based one-time-code flow.
	LoginDerivedSecret LoginMode = "derived_secret"
)

// BrokerDefinition is an immutable catalog entry for a supported broker.
type BrokerDefinition struct {
	ID   string    `json:"broker_id"`
	Name string    `json:"name"`
	Mode LoginMode `json:"login_mode"`
}

var brokerCatalog = []BrokerDefinition{
	{ID: "kite", Name: "Zerodha Kite", Mode: LoginRedirect},
	{ID: "groww", Name: "Groww", Mode: LoginDerivedSecret},
}

// Brokers returns the static broker catalog.
func Brokers() []BrokerDefinition {
	out := make([]BrokerDefinition, len(brokerCatalog))
	copy(out, brokerCatalog)
	return out
}

// BrokerByID looks up a catalog entry.
func BrokerByID(id string) (BrokerDefinition, bool) {
	for _, b := range brokerCatalog {
		if b.ID == id {
			return b, true
		}
	}
	return BrokerDefinition{}, false
}

// BrokerCredential is the persisted, encrypted credential row for one
// (user, broker) pair. Secret material is stored sealed; it is only opened
// inside the vault.
type BrokerCredential struct {
	UserID               string
	BrokerID             string
	APIKey               string
	APISecretEncrypted   string
	AccessTokenEncrypted *string
	Status               CredentialStatus
	TokenIssuedAt        *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Credential is the decrypted form handed to the session manager and fetch
// layer. It must never be serialized onto an external interface.
type Credential struct {
	UserID        string
	BrokerID      string
	APIKey        string
	APISecret     string
	AccessToken   string
	Status        CredentialStatus
	TokenIssuedAt *time.Time
}
