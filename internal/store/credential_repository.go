/**
 * @description
 * PostgreSQL persistence for encrypted broker credentials. One row per
 * (user_id, broker_id), enforced by a unique constraint. The repository only
 * ever sees sealed secret material; encryption and decryption live in the
 * vault package.
 */
package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/investrack/portfolio-service/internal/domain"
)

// CredentialRepository defines the interface for credential storage.
type CredentialRepository interface {
	Get(ctx context.Context, userID, brokerID string) (*domain.BrokerCredential, error)
	ListByUser(ctx context.Context, userID string) ([]domain.BrokerCredential, error)
	Upsert(ctx context.Context, cred *domain.BrokerCredential) error
	Delete(ctx context.Context, userID, brokerID string) (bool, error)
	SetToken(ctx context.Context, userID, brokerID, encryptedToken string, issuedAt time.Time) error
	ClearToken(ctx context.Context, userID, brokerID string) error
	ClearAllTokens(ctx context.Context, userID string) error
}

// PostgresCredentialRepository is the pgx implementation of CredentialRepository.
type PostgresCredentialRepository struct {
	db *pgxpool.Pool
}

// NewPostgresCredentialRepository creates a new instance of PostgresCredentialRepository.
func NewPostgresCredentialRepository(db *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

// EnsureSchema creates the broker_credentials table if it does not exist.
// Idempotent; called once at startup.
func (r *PostgresCredentialRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS broker_credentials (
            user_id TEXT NOT NULL,
            broker_id TEXT NOT NULL,
            api_key TEXT NOT NULL,
            api_secret_encrypted TEXT NOT NULL,
            access_token_encrypted TEXT,
            status TEXT NOT NULL DEFAULT 'configured',
            token_issued_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, broker_id)
        );
        CREATE INDEX IF NOT EXISTS idx_broker_credentials_user_id
            ON broker_credentials(user_id);
    `)
	if err != nil {
		log.Printf("Error ensuring broker_credentials schema: %v", err)
	}
	return err
}

const credentialColumns = `
    user_id, broker_id, api_key, api_secret_encrypted,
    access_token_encrypted, status, token_issued_at, created_at, updated_at`

func scanCredential(row pgx.Row) (*domain.BrokerCredential, error) {
	var cred domain.BrokerCredential
	err := row.Scan(
		&cred.UserID,
		&cred.BrokerID,
		&cred.APIKey,
		&cred.APISecretEncrypted,
		&cred.AccessTokenEncrypted,
		&cred.Status,
		&cred.TokenIssuedAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Get returns the credential row for a (user, broker) pair, or nil when none exists.
func (r *PostgresCredentialRepository) Get(ctx context.Context, userID, brokerID string) (*domain.BrokerCredential, error) {
	query := `SELECT` + credentialColumns + `
        FROM broker_credentials WHERE user_id = $1 AND broker_id = $2`
	cred, err := scanCredential(r.db.QueryRow(ctx, query, userID, brokerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Printf("Error fetching credential for user %s broker %s: %v", userID, brokerID, err)
		return nil, err
	}
	return cred, nil
}

// ListByUser returns all credential rows for a user.
func (r *PostgresCredentialRepository) ListByUser(ctx context.Context, userID string) ([]domain.BrokerCredential, error) {
	query := `SELECT` + credentialColumns + `
        FROM broker_credentials WHERE user_id = $1 ORDER BY broker_id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.BrokerCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, rows.Err()
}

// Upsert writes the full credential row in one statement so a racing pair of
// saves can never interleave fields.
func (r *PostgresCredentialRepository) Upsert(ctx context.Context, cred *domain.BrokerCredential) error {
	query := `
        INSERT INTO broker_credentials
            (user_id, broker_id, api_key, api_secret_encrypted,
             access_token_encrypted, status, token_issued_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, broker_id) DO UPDATE SET
            api_key = EXCLUDED.api_key,
            api_secret_encrypted = EXCLUDED.api_secret_encrypted,
            access_token_encrypted = EXCLUDED.access_token_encrypted,
            status = EXCLUDED.status,
            token_issued_at = EXCLUDED.token_issued_at,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		cred.UserID,
		cred.BrokerID,
		cred.APIKey,
		cred.APISecretEncrypted,
		cred.AccessTokenEncrypted,
		cred.Status,
		cred.TokenIssuedAt,
	)
	if err != nil {
		log.Printf("Error upserting credential for user %s broker %s: %v", cred.UserID, cred.BrokerID, err)
	}
	return err
}

// Delete removes the row. Returns false when no row existed; callers treat
// that as success (delete is idempotent).
func (r *PostgresCredentialRepository) Delete(ctx context.Context, userID, brokerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM broker_credentials WHERE user_id = $1 AND broker_id = $2`,
		userID, brokerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetToken stores a freshly issued access token and flips status to authenticated.
func (r *PostgresCredentialRepository) SetToken(ctx context.Context, userID, brokerID, encryptedToken string, issuedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE broker_credentials
        SET access_token_encrypted = $3, status = $4,
            token_issued_at = $5, updated_at = NOW()
        WHERE user_id = $1 AND broker_id = $2
    `, userID, brokerID, encryptedToken, domain.StatusAuthenticated, issuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClearToken drops the stored access token and flips status back to configured.
func (r *PostgresCredentialRepository) ClearToken(ctx context.Context, userID, brokerID string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE broker_credentials
        SET access_token_encrypted = NULL, status = $3,
            token_issued_at = NULL, updated_at = NOW()
        WHERE user_id = $1 AND broker_id = $2
    `, userID, brokerID, domain.StatusConfigured)
	return err
}

// ClearAllTokens drops every stored access token for a user.
func (r *PostgresCredentialRepository) ClearAllTokens(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE broker_credentials
        SET access_token_encrypted = NULL, status = $2,
            token_issued_at = NULL, updated_at = NOW()
        WHERE user_id = $1
    `, userID, domain.StatusConfigured)
	return err
}
