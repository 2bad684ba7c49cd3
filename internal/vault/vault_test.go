package vault

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newTestVault(t *testing.T) (*Vault, *store.MemoryCredentialRepository, *capturePublisher) {
	t.Helper()
	repo := store.NewMemoryCredentialRepository()
	producer := &capturePublisher{}
	return NewVault(repo, newTestBox(t), producer), repo, producer
}

func TestVaultSaveValidation(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		brokerID string
		apiKey   string
		secret   string
		wantKind domain.Kind
	}{
		{"unknown broker", "upstox", "key", "secret", domain.KindNotFound},
		{"empty key", "kite", "", "secret", domain.KindValidation},
		{"empty secret", "kite", "key", "", domain.KindValidation},
		{"whitespace secret", "kite", "key", "   ", domain.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Save(ctx, "user-1", tc.brokerID, tc.apiKey, tc.secret)
			if domain.KindOf(err) != tc.wantKind {
				t.Errorf("Save: got kind %q, want %q", domain.KindOf(err), tc.wantKind)
			}
		})
	}
}

func TestVaultSaveAndGetRoundTrip(t *testing.T) {
	v, repo, producer := newTestVault(t)
	ctx := context.Background()

	if err := v.Save(ctx, "user-1", "kite", "my-key", "my-secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cred, err := v.Get(ctx, "user-1", "kite")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred.APIKey != "my-key" || cred.APISecret != "my-secret" {
		t.Errorf("Get returned key=%q secret=%q", cred.APIKey, cred.APISecret)
	}
	if cred.Status != domain.StatusConfigured {
		t.Errorf("status = %q, want configured", cred.Status)
	}

	// The stored row must never contain the plaintext secret.
	row, _ := repo.Get(ctx, "user-1", "kite")
	if strings.Contains(row.APISecretEncrypted, "my-secret") {
		t.Error("persisted row contains plaintext secret")
	}

	keys := producer.routingKeys()
	if len(keys) != 1 || keys[0] != "broker.credential_saved" {
		t.Errorf("published events = %v, want [broker.credential_saved]", keys)
	}
}

func TestVaultGetAbsent(t *testing.T) {
	v, _, _ := newTestVault(t)

	_, err := v.Get(context.Background(), "user-1", "kite")
	if !domain.IsKind(err, domain.KindCredentialError) {
		t.Errorf("Get absent: got kind %q, want credential_error", domain.KindOf(err))
	}

	status, err := v.Status(context.Background(), "user-1", "kite")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != domain.StatusUnconfigured {
		t.Errorf("Status absent = %q, want unconfigured", status)
	}
}

func TestVaultDeleteIsIdempotent(t *testing.T) {
	v, _, producer := newTestVault(t)
	ctx := context.Background()

	// Deleting a credential that was never saved succeeds and publishes nothing.
	if err := v.Delete(ctx, "user-1", "kite"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if len(producer.routingKeys()) != 0 {
		t.Errorf("delete of absent credential published %v", producer.routingKeys())
	}

	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.Delete(ctx, "user-1", "kite"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	status, _ := v.Status(ctx, "user-1", "kite")
	if status != domain.StatusUnconfigured {
		t.Errorf("status after delete = %q, want unconfigured", status)
	}

	keys := producer.routingKeys()
	if len(keys) != 2 || keys[1] != "broker.credential_deleted" {
		t.Errorf("published events = %v", keys)
	}
}

func TestVaultSaveInvalidatesStoredToken(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.StoreToken(ctx, "user-1", "kite", "access-token", time.Now()); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	cred, _ := v.Get(ctx, "user-1", "kite")
	if cred.Status != domain.StatusAuthenticated || cred.AccessToken != "access-token" {
		t.Fatalf("after StoreToken: status=%q token=%q", cred.Status, cred.AccessToken)
	}

	// Re-saving credentials must drop the token: the old session was minted
	// against the old secret.
	if err := v.Save(ctx, "user-1", "kite", "new-key", "new-secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cred, _ = v.Get(ctx, "user-1", "kite")
	if cred.Status != domain.StatusConfigured {
		t.Errorf("status after re-save = %q, want configured", cred.Status)
	}
	if cred.AccessToken != "" {
		t.Errorf("access token survived credential re-save")
	}
}

func TestVaultListReportsCorruptedRows(t *testing.T) {
	v, repo, _ := newTestVault(t)
	ctx := context.Background()

	if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A groww row sealed with some other key decrypts to garbage.
	repo.Upsert(ctx, &domain.BrokerCredential{
		UserID:             "user-1",
		BrokerID:           "groww",
		APIKey:             "key",
		APISecretEncrypted: "bm90IHJlYWwgY2lwaGVydGV4dA==",
		Status:             domain.StatusAuthenticated,
	})

	creds, corrupted, err := v.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(creds) != 1 || creds[0].BrokerID != "kite" {
		t.Errorf("List creds = %+v, want just the kite credential", creds)
	}
	// The bad row is reported, not dropped, with its last known status intact.
	if len(corrupted) != 1 || corrupted[0].BrokerID != "groww" {
		t.Fatalf("List corrupted = %+v, want the groww row", corrupted)
	}
	if corrupted[0].Status != domain.StatusAuthenticated {
		t.Errorf("corrupted status = %q, want authenticated", corrupted[0].Status)
	}

	// Direct access to the corrupted row names the real condition.
	_, err = v.Get(ctx, "user-1", "groww")
	if !domain.IsKind(err, domain.KindCredentialCorrupted) {
		t.Errorf("Get corrupted: got kind %q, want credential_corrupted", domain.KindOf(err))
	}
}

func TestVaultConcurrentSaves(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Save(ctx, "user-1", "kite", "key", "secret"); err != nil {
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	cred, err := v.Get(ctx, "user-1", "kite")
	if err != nil {
		t.Fatalf("Get after concurrent saves: %v", err)
	}
	if cred.APIKey != "key" || cred.APISecret != "secret" {
		t.Errorf("credential fields interleaved: %+v", cred)
	}
}
