/**
 * @description
 * Broker credential and login endpoints. Secrets flow in through the save
 * endpoint and are sealed by the vault; no response in this file ever echoes
 * key or secret material back.
 */
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/investrack/portfolio-service/internal/domain"
	"github.com/investrack/portfolio-service/internal/session"
	"github.com/investrack/portfolio-service/internal/vault"
)

// BrokerHandler serves the broker catalog, credential management, and the
// login flows.
type BrokerHandler struct {
	vault    *vault.Vault
	sessions *session.Manager
}

func NewBrokerHandler(v *vault.Vault, sessions *session.Manager) *BrokerHandler {
	return &BrokerHandler{vault: v, sessions: sessions}
}

type brokerView struct {
	domain.BrokerDefinition
	Status domain.CredentialStatus `json:"status"`
}

// List handles GET /api/brokers: the catalog annotated with the caller's
// credential status per broker.
func (h *BrokerHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	views := make([]brokerView, 0, len(domain.Brokers()))
	for _, def := range domain.Brokers() {
		status, err := h.vault.Status(r.Context(), userID, def.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		views = append(views, brokerView{BrokerDefinition: def, Status: status})
	}
	respondJSON(w, http.StatusOK, views)
}

func brokerFromPath(r *http.Request) (domain.BrokerDefinition, error) {
	id := chi.URLParam(r, "brokerID")
	def, ok := domain.BrokerByID(id)
	if !ok {
		return domain.BrokerDefinition{}, domain.E(domain.KindNotFound, "unknown broker: "+id)
	}
	return def, nil
}

// SaveCredentials handles POST /api/brokers/{brokerID}/credentials.
func (h *BrokerHandler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	userID := GetUserID(r.Context())
	if err := h.vault.Save(r.Context(), userID, def.ID, req.APIKey, req.APISecret); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"broker_id": def.ID,
		"status":    string(domain.StatusConfigured),
	})
}

// DeleteCredentials handles DELETE /api/brokers/{brokerID}/credentials.
// Deleting a broker that was never configured succeeds.
func (h *BrokerHandler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	userID := GetUserID(r.Context())
	if err := h.vault.Delete(r.Context(), userID, def.ID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"broker_id": def.ID,
		"status":    string(domain.StatusUnconfigured),
	})
}

// LoginURL handles GET /api/brokers/{brokerID}/login-url.
func (h *BrokerHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	userID := GetUserID(r.Context())
	loginURL, err := h.sessions.LoginURL(r.Context(), userID, def.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"login_url": loginURL})
}

// CompleteSession handles POST /api/brokers/{brokerID}/session: the one-time
// code from the redirect callback is exchanged for a broker access token.
func (h *BrokerHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		RequestToken string `json:"request_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.RequestToken == "" {
		respondError(w, domain.E(domain.KindValidation, "request_token is required"))
		return
	}

	userID := GetUserID(r.Context())
	if err := h.sessions.CompleteExchange(r.Context(), userID, def.ID, req.RequestToken); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"broker_id": def.ID,
		"status":    string(domain.StatusAuthenticated),
	})
}

// Authenticate handles POST /api/brokers/{brokerID}/authenticate for brokers
// on the derived-secret flow.
func (h *BrokerHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	userID := GetUserID(r.Context())
	if err := h.sessions.AutoAuthenticate(r.Context(), userID, def.ID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"broker_id": def.ID,
		"status":    string(domain.StatusAuthenticated),
	})
}

// Logout handles POST /api/brokers/{brokerID}/logout.
func (h *BrokerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	def, err := brokerFromPath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	userID := GetUserID(r.Context())
	if err := h.sessions.Logout(r.Context(), userID, def.ID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"broker_id": def.ID,
		"status":    string(domain.StatusConfigured),
	})
}

// LogoutAll handles POST /api/brokers/logout-all.
func (h *BrokerHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if err := h.sessions.LogoutAll(r.Context(), userID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
