package brokerapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"401", &APIError{StatusCode: http.StatusUnauthorized}, true},
		{"403", &APIError{StatusCode: http.StatusForbidden}, true},
		{"500", &APIError{StatusCode: http.StatusInternalServerError}, false},
		{"429", &APIError{StatusCode: http.StatusTooManyRequests}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAuthError(tc.err); got != tc.want {
				t.Errorf("IsAuthError = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecodeResponsePrefersProviderMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "Token is invalid or has expired",
		})
	}))
	defer server.Close()

	err := doJSON(context.Background(), server.Client(), http.MethodGet, server.URL, nil, nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.StatusCode)
	}
	if apiErr.Message != "Token is invalid or has expired" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestExchangeChecksum(t *testing.T) {
	// SHA-256 over the exact concatenation api_key + request_token + api_secret.
	got := ExchangeChecksum("key", "token", "secret")
	if len(got) != 64 {
		t.Fatalf("checksum length = %d, want 64 hex chars", len(got))
	}
	if got != ExchangeChecksum("key", "token", "secret") {
		t.Error("checksum is not deterministic")
	}
	if got == ExchangeChecksum("key", "token", "other") {
		t.Error("checksum ignores the secret")
	}
}

func TestKiteGenerateSessionRequiresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{}})
	}))
	defer server.Close()

	client := NewKiteClient(server.URL)
	_, err := client.GenerateSession(context.Background(), "key", "secret", "code")
	if err == nil {
		t.Error("empty access token accepted")
	}
}
