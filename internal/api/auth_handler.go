/**
 * @description
 * App session issuance. The frontend signs in against the identity provider
 * and exchanges the resulting assertion here for a service session JWT.
 * Assertion verification is a collaborator so deployments can plug in their
 * own provider.
 */
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/investrack/portfolio-service/internal/domain"
)

// IdentityVerifier validates an identity assertion and resolves the user it
// belongs to.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (userID string, err error)
}

// JWTIdentityVerifier accepts HS256 assertions minted by an identity
// provider that shares a secret with this service.
type JWTIdentityVerifier struct {
	secret []byte
}

func NewJWTIdentityVerifier(secret string) *JWTIdentityVerifier {
	return &JWTIdentityVerifier{secret: []byte(secret)}
}

func (v *JWTIdentityVerifier) Verify(ctx context.Context, assertion string) (string, error) {
	token, err := jwt.ParseWithClaims(assertion, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.E(domain.KindUnauthorized, "unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.Wrap(domain.KindUnauthorized, "invalid identity assertion", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.E(domain.KindUnauthorized, "identity assertion carries no subject")
	}
	return claims.Subject, nil
}

// AuthHandler exchanges identity assertions for session tokens.
type AuthHandler struct {
	verifier IdentityVerifier
	sessions *SessionAuth
}

func NewAuthHandler(verifier IdentityVerifier, sessions *SessionAuth) *AuthHandler {
	return &AuthHandler{verifier: verifier, sessions: sessions}
}

// CreateSession handles POST /api/auth/session.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assertion string `json:"assertion"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Assertion == "" {
		respondError(w, domain.E(domain.KindValidation, "assertion is required"))
		return
	}

	userID, err := h.verifier.Verify(r.Context(), req.Assertion)
	if err != nil {
		respondError(w, err)
		return
	}

	now := time.Now()
	token, err := h.sessions.IssueToken(userID, now)
	if err != nil {
		respondError(w, domain.Wrap(domain.KindInternal, "failed to issue session token", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(sessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusCreated, map[string]string{
		"session_token": token,
		"user_id":       userID,
	})
}
