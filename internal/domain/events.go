package domain

import "time"

// Broker lifecycle events published to the broker_events exchange. Consumers
// (audit, notifications) key off the routing key; payloads never contain
// secret material.

type CredentialSavedEvent struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	BrokerID string    `json:"broker_id"`
	SavedAt  time.Time `json:"saved_at"`
}

type CredentialDeletedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	BrokerID  string    `json:"broker_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type BrokerAuthenticatedEvent struct {
	EventID         string    `json:"event_id"`
	UserID          string    `json:"user_id"`
	BrokerID        string    `json:"broker_id"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

type TokenExpiredEvent struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	BrokerID   string    `json:"broker_id"`
	DetectedAt time.Time `json:"detected_at"`
}
