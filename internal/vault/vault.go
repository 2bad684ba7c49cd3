/**
 * @description
 * The credential vault owns every read and write of broker credential
 * plaintext. Secrets enter sealed and leave the package only as
 * domain.Credential values handed to the session manager and fetch layer —
 * never across the HTTP boundary.
 *
 * Writes to a single (user, broker) key are serialized through a striped key
 * mutex on top of the repository's single-statement upsert, so two racing
 * saves can never interleave fields.
 */
package vault

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/store"
	"github.com/investrack/portfolio-service/pkg/rabbitmq"
)

// Vault stores and retrieves per-user, per-broker credentials under encryption.
type Vault struct {
	repo     store.CredentialRepository
	box      *SecretBox
	producer rabbitmq.Publisher

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewVault creates a vault around a credential repository and secret box.
func NewVault(repo store.CredentialRepository, box *SecretBox, producer rabbitmq.Publisher) *Vault {
	return &Vault{
		repo:     repo,
		box:      box,
		producer: producer,
		keys:     map[string]*sync.Mutex{},
	}
}

func (v *Vault) keyLock(userID, brokerID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := userID + "/" + brokerID
	if m, ok := v.keys[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	v.keys[key] = m
	return m
}

// Save validates and upserts a credential, encrypting the secret. Any
// previously stored access token is invalidated: a credential change always
// requires a fresh broker login.
func (v *Vault) Save(ctx context.Context, userID, brokerID, apiKey, apiSecret string) error {
	if _, ok := domain.BrokerByID(brokerID); !ok {
		return domain.E(domain.KindNotFound, "unknown broker "+brokerID)
	}
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return domain.E(domain.KindValidation, "api_key and api_secret cannot be empty")
	}

	sealed, err := v.box.Seal(strings.TrimSpace(apiSecret))
	if err != nil {
		return domain.Wrap(domain.KindInternal, "failed to encrypt credential", err)
	}

	lock := v.keyLock(userID, brokerID)
	lock.Lock()
	defer lock.Unlock()

	cred := &domain.BrokerCredential{
		UserID:             userID,
		BrokerID:           brokerID,
		APIKey:             strings.TrimSpace(apiKey),
		APISecretEncrypted: sealed,
		Status:             domain.StatusConfigured,
		// AccessTokenEncrypted and TokenIssuedAt left nil: the upsert
		// overwrites them, invalidating any cached session state.
	}
	if err := v.repo.Upsert(ctx, cred); err != nil {
		return domain.Wrap(domain.KindInternal, "failed to persist credential", err)
	}

	_ = v.producer.Publish(ctx, rabbitmq.BrokerEventsExchange, "broker.credential_saved", domain.CredentialSavedEvent{
		EventID:  uuid.NewString(),
		UserID:   userID,
		BrokerID: brokerID,
		SavedAt:  time.Now().UTC(),
	})
	return nil
}

// Get returns the decrypted credential for internal use. Absence is a
// credential_error; a decryption failure is credential_corrupted, which is a
// different condition the user can only resolve by re-entering the secret.
func (v *Vault) Get(ctx context.Context, userID, brokerID string) (*domain.Credential, error) {
	row, err := v.repo.Get(ctx, userID, brokerID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "failed to read credential", err)
	}
	if row == nil {
		return nil, domain.E(domain.KindCredentialError, "broker "+brokerID+" is not configured")
	}
	return v.open(row)
}

func (v *Vault) open(row *domain.BrokerCredential) (*domain.Credential, error) {
	secret, err := v.box.Open(row.APISecretEncrypted)
	if err != nil {
		if errors.Is(err, ErrDecryptFailed) {
			return nil, domain.Wrap(domain.KindCredentialCorrupted,
				"stored credential for "+row.BrokerID+" cannot be decrypted; re-enter it", err)
		}
		return nil, err
	}

	cred := &domain.Credential{
		UserID:        row.UserID,
		BrokerID:      row.BrokerID,
		APIKey:        row.APIKey,
		APISecret:     secret,
		Status:        row.Status,
		TokenIssuedAt: row.TokenIssuedAt,
	}
	if row.AccessTokenEncrypted != nil && *row.AccessTokenEncrypted != "" {
		token, err := v.box.Open(*row.AccessTokenEncrypted)
		if err != nil {
			return nil, domain.Wrap(domain.KindCredentialCorrupted,
				"stored access token for "+row.BrokerID+" cannot be decrypted; re-authenticate", err)
		}
		cred.AccessToken = token
	}
	return cred, nil
}

// CorruptedCredential identifies a stored row that can no longer be decrypted.
// The row's status column is still readable, so callers can tell whether the
// broker was authenticated before the row went bad.
type CorruptedCredential struct {
	BrokerID string
	Status   domain.CredentialStatus
}

// List returns decrypted credentials for every broker the user has configured,
// plus the rows that failed to decrypt. A corrupted row never hides the rest
// of the user's brokers, and it never silently disappears either: callers get
// it back in the second slice and decide how to surface it.
func (v *Vault) List(ctx context.Context, userID string) ([]domain.Credential, []CorruptedCredential, error) {
	rows, err := v.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindInternal, "failed to list credentials", err)
	}
	creds := make([]domain.Credential, 0, len(rows))
	var corrupted []CorruptedCredential
	for i := range rows {
		cred, err := v.open(&rows[i])
		if err != nil {
			corrupted = append(corrupted, CorruptedCredential{
				BrokerID: rows[i].BrokerID,
				Status:   rows[i].Status,
			})
			continue
		}
		creds = append(creds, *cred)
	}
	return creds, corrupted, nil
}

// Status reports the lifecycle status for a (user, broker) pair without
// touching secret material.
func (v *Vault) Status(ctx context.Context, userID, brokerID string) (domain.CredentialStatus, error) {
	row, err := v.repo.Get(ctx, userID, brokerID)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "failed to read credential", err)
	}
	if row == nil {
		return domain.StatusUnconfigured, nil
	}
	return row.Status, nil
}

// Delete removes the credential. Idempotent: deleting an absent credential
// still succeeds and leaves the pair unconfigured.
func (v *Vault) Delete(ctx context.Context, userID, brokerID string) error {
	if _, ok := domain.BrokerByID(brokerID); !ok {
		return domain.E(domain.KindNotFound, "unknown broker "+brokerID)
	}

	lock := v.keyLock(userID, brokerID)
	lock.Lock()
	defer lock.Unlock()

	existed, err := v.repo.Delete(ctx, userID, brokerID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "failed to delete credential", err)
	}
	if existed {
		_ = v.producer.Publish(ctx, rabbitmq.BrokerEventsExchange, "broker.credential_deleted", domain.CredentialDeletedEvent{
			EventID:   uuid.NewString(),
			UserID:    userID,
			BrokerID:  brokerID,
			DeletedAt: time.Now().UTC(),
		})
	}
	return nil
}

// StoreToken seals a freshly issued access token and flips the credential to
// authenticated.
func (v *Vault) StoreToken(ctx context.Context, userID, brokerID, accessToken string, issuedAt time.Time) error {
	sealed, err := v.box.Seal(accessToken)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "failed to encrypt access token", err)
	}

	lock := v.keyLock(userID, brokerID)
	lock.Lock()
	defer lock.Unlock()

	if err := v.repo.SetToken(ctx, userID, brokerID, sealed, issuedAt); err != nil {
		return domain.Wrap(domain.KindInternal, "failed to persist access token", err)
	}
	return nil
}

// ClearToken drops the access token and returns the credential to configured.
func (v *Vault) ClearToken(ctx context.Context, userID, brokerID string) error {
	lock := v.keyLock(userID, brokerID)
	lock.Lock()
	defer lock.Unlock()

	if err := v.repo.ClearToken(ctx, userID, brokerID); err != nil {
		return domain.Wrap(domain.KindInternal, "failed to clear access token", err)
	}
	return nil
}

// ClearAllTokens drops every access token the user holds.
func (v *Vault) ClearAllTokens(ctx context.Context, userID string) error {
	if err := v.repo.ClearAllTokens(ctx, userID); err != nil {
		return domain.Wrap(domain.KindInternal, "failed to clear access tokens", err)
	}
	return nil
}
