package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/investrack/portfolio-service/internal/domain"
)

// MemoryCredentialRepository is an in-process CredentialRepository used in
// tests and local development without Postgres. Semantics mirror the pgx
// implementation, including pgx.ErrNoRows from SetToken on a missing row.
type MemoryCredentialRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.BrokerCredential
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{rows: map[string]domain.BrokerCredential{}}
}

func memKey(userID, brokerID string) string {
	return userID + "/" + brokerID
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, userID, brokerID string) (*domain.BrokerCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[memKey(userID, brokerID)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *MemoryCredentialRepository) ListByUser(ctx context.Context, userID string) ([]domain.BrokerCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rows []domain.BrokerCredential
	for _, def := range domain.Brokers() {
		if row, ok := r.rows[memKey(userID, def.ID)]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, cred *domain.BrokerCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	row := *cred
	if existing, ok := r.rows[memKey(cred.UserID, cred.BrokerID)]; ok {
		row.CreatedAt = existing.CreatedAt
	} else {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	r.rows[memKey(cred.UserID, cred.BrokerID)] = row
	return nil
}

func (r *MemoryCredentialRepository) Delete(ctx context.Context, userID, brokerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(userID, brokerID)
	_, existed := r.rows[key]
	delete(r.rows, key)
	return existed, nil
}

func (r *MemoryCredentialRepository) SetToken(ctx context.Context, userID, brokerID, encryptedToken string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(userID, brokerID)
	row, ok := r.rows[key]
	if !ok {
		return pgx.ErrNoRows
	}
	token := encryptedToken
	issued := issuedAt
	row.AccessTokenEncrypted = &token
	row.Status = domain.StatusAuthenticated
	row.TokenIssuedAt = &issued
	row.UpdatedAt = time.Now()
	r.rows[key] = row
	return nil
}

func (r *MemoryCredentialRepository) ClearToken(ctx context.Context, userID, brokerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(userID, brokerID)
	row, ok := r.rows[key]
	if !ok {
		return nil
	}
	row.AccessTokenEncrypted = nil
	row.Status = domain.StatusConfigured
	row.TokenIssuedAt = nil
	row.UpdatedAt = time.Now()
	r.rows[key] = row
	return nil
}

func (r *MemoryCredentialRepository) ClearAllTokens(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, row := range r.rows {
		if row.UserID != userID {
			continue
		}
		row.AccessTokenEncrypted = nil
		row.Status = domain.StatusConfigured
		row.TokenIssuedAt = nil
		row.UpdatedAt = time.Now()
		r.rows[key] = row
	}
	return nil
}
