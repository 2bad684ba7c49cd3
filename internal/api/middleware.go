/**
 * @description
 * Session authentication middleware. Every portfolio and broker route
 * requires a signed HS256 session JWT, presented either as a Bearer token or
 * as the session_token cookie. The authenticated user ID travels on the
 * request context.
 */
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/investrack/portfolio-service/internal/domain"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionCookieName is the cookie fallback for browser clients that cannot
// set an Authorization header.
const SessionCookieName = "session_token"

// sessionTTL bounds how long an issued session token stays valid.
const sessionTTL = 24 * time.Hour

// SessionAuth signs and verifies session tokens.
type SessionAuth struct {
	secret []byte
}

func NewSessionAuth(secret string) *SessionAuth {
	return &SessionAuth{secret: []byte(secret)}
}

// IssueToken mints a session JWT for the given user.
func (a *SessionAuth) IssueToken(userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyToken validates a session JWT and returns the user ID it names.
func (a *SessionAuth) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.E(domain.KindUnauthorized, "unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.Wrap(domain.KindUnauthorized, "invalid or expired session", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.E(domain.KindUnauthorized, "session token carries no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid session token.
func (a *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			respondError(w, domain.E(domain.KindUnauthorized, "missing session token"))
			return
		}

		userID, err := a.VerifyToken(tokenString)
		if err != nil {
			respondError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID returns the authenticated user ID set by Middleware.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
