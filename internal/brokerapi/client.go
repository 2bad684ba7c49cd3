/**
 * @description
 * HTTP clients for the broker provider APIs. Each client wraps a base URL
 * and a timeout-bounded http.Client; responses are decoded into typed raw
 * records the fetch layer normalizes into the canonical model.
 */
package brokerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from a broker provider. The status code lets
// the caller classify auth rejections separately from outages.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker api: %d %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether the error is a provider-side auth rejection
// (expired, revoked, or malformed token/code).
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))

		// Providers wrap errors as {"status":"error","message":"..."}; prefer
		// the message when present.
		var envelope struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			if envelope.Message != "" {
				msg = envelope.Message
			} else if envelope.Error != "" {
				msg = envelope.Error
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}
