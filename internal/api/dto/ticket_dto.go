package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID          string        `json:"id"`
	ReferenceID string        `json:"ticket_id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	User        *UserResponse `json:"user,omitempty"`
}

// NewTicketResponse maps a ticket without its owner.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		ReferenceID: t.ReferenceID,
		Name:        t.Name,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketWithOwnerResponse maps a ticket and embeds its owner.
func NewTicketWithOwnerResponse(t *domain.TicketWithOwner) TicketResponse {
	resp := NewTicketResponse(&t.Ticket)
	owner := NewUserResponse(&t.Owner)
	resp.User = &owner
	return resp
}

// PaginationMeta describes a page of results.
type PaginationMeta struct {
	Page     int `json:"page"`
	Limit    int `json:"limit"`
	Total    int `json:"total"`
	LastPage int `json:"last_page"`
}

// ProfileResponse is a user with their tickets.
type ProfileResponse struct {
	User    UserResponse     `json:"user"`
	Tickets []TicketResponse `json:"tickets"`
}
