/**
 * @description
 * JSON response envelope and error mapping for the HTTP API. Every response
 * is either {"success":true,"data":...} or
 * {"success":false,"error":...,"error_kind":...}; the error kind gives
 * clients a stable machine-readable signal, with token_expired singled out
 * so the UI can trigger broker re-authentication.
 */
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/investrack/portfolio-service/internal/domain"
)

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data}); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		// Internal causes stay in the logs, not on the wire.
		log.Printf("Internal error: %v", err)
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	json.NewEncoder(w).Encode(errorEnvelope{Error: message, ErrorKind: string(kind)})
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidExchange, domain.KindCodeMismatch:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindTokenExpired:
		// 401 with kind token_expired tells the client to re-run the broker
		// login flow, not the app login.
		return http.StatusUnauthorized
	case domain.KindCredentialError, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindCredentialCorrupted:
		return http.StatusConflict
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case domain.KindPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindValidation, "invalid request body", err)
	}
	return nil
}
