package domain

import (
	"fmt"
	"time"
)

// Remote ticket states the admin filter accepts. Other values are mirrored verbatim.
const (
	TicketStatusComplete   = "complete"
	TicketStatusVoid       = "void"
	TicketStatusIncomplete = "incomplete"
)

// Ticket mirrors one remote ticket. ReferenceID is unique across all rows, soft-deleted included.
type Ticket struct {
	ID          string
	ReferenceID string
	Name        string
	Status      string
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// IsDeleted reports whether the ticket is soft-deleted.
func (t *Ticket) IsDeleted() bool {
	return t != nil && t.DeletedAt != nil
}

// TicketWithOwner joins a ticket to its owning user for read APIs.
type TicketWithOwner struct {
	Ticket
	Owner User
}

// TicketUpdate carries in-place ticket changes. Nil fields are left alone.
type TicketUpdate struct {
	Name   *string
	Status *string
	UserID *string
}

// IsEmpty reports whether the update changes nothing.
func (u TicketUpdate) IsEmpty() bool {
	return u.Name == nil && u.Status == nil && u.UserID == nil
}

// TicketDisplayName builds the local name, e.g. "Early Bird ( #42 )".
func TicketDisplayName(releaseTitle, releaseID string) string {
	return fmt.Sprintf("%s ( #%s )", releaseTitle, releaseID)
}

// IsKnownTicketStatus reports whether status is one of the filterable states.
func IsKnownTicketStatus(status string) bool {
	switch status {
	case TicketStatusComplete, TicketStatusVoid, TicketStatusIncomplete:
		return true
	}
	return false
}
