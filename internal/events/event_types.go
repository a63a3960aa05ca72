package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates session security events.
type EventType string

const (
	EventLoginSucceeded       EventType = "login_succeeded"
	EventLoginFailed          EventType = "login_failed"
	EventRefreshRotated       EventType = "refresh_rotated"
	EventRefreshRejected      EventType = "refresh_rejected"
	EventRefreshReuseDetected EventType = "refresh_reuse_detected"
	EventLoggedOut            EventType = "logged_out"
	EventSessionRevoked       EventType = "session_revoked"
)

// Event represents a session event emitted by the session service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Username  string      `json:"username"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh id.
func New(eventType EventType, username string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Username:  username,
		Timestamp: at,
		Payload:   payload,
	}
}

// LoginFailedPayload payload. Reason is internal only and never returned to clients.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// RefreshRejectedPayload payload.
type RefreshRejectedPayload struct {
	Kind string `json:"kind"`
}

// SessionRevokedPayload payload.
type SessionRevokedPayload struct {
	RevokedBy string `json:"revoked_by,omitempty"`
}
