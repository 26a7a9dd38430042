package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketReassigned EventType = "ticket_reassigned"
	EventTicketVoided     EventType = "ticket_voided"
	EventTicketRestored   EventType = "ticket_restored"
	EventUserProvisioned  EventType = "user_provisioned"
)

// Event represents a domain event emitted by services. ReferenceID is empty for user events.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	ReferenceID string      `json:"reference_id,omitempty"`
	UserID      string      `json:"user_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType EventType, referenceID, userID string, payload interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ReferenceID: referenceID,
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID string `json:"ticket_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Trigger  string `json:"trigger,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	TicketID string `json:"ticket_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// TicketReassignedPayload payload.
type TicketReassignedPayload struct {
	TicketID       string `json:"ticket_id"`
	PreviousUserID string `json:"previous_user_id"`
	NewUserID      string `json:"new_user_id"`
}

// TicketLifecyclePayload is shared by voided and restored events.
type TicketLifecyclePayload struct {
	TicketID string `json:"ticket_id"`
	Trigger  string `json:"trigger"`
}

// UserProvisionedPayload payload.
type UserProvisionedPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
