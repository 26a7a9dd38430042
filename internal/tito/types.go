package tito

import (
	"encoding/json"
	"strings"
)

// Ticket is a remote ticket as returned by the tickets endpoints. The bulk listing
// reports the state in "state", webhooks in "state_name".
type Ticket struct {
	Reference    string      `json:"reference"`
	ReleaseID    json.Number `json:"release_id"`
	ReleaseTitle string      `json:"release_title"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PhoneNumber  string      `json:"phone_number"`
	State        string      `json:"state"`
	StateName    string      `json:"state_name"`
}

// EffectiveState returns state_name when present, falling back to state.
func (t Ticket) EffectiveState() string {
	if strings.TrimSpace(t.StateName) != "" {
		return t.StateName
	}
	return t.State
}

// Meta carries the pagination cursor of a listing.
type Meta struct {
	NextPage   *int `json:"next_page"`
	TotalPages int  `json:"total_pages"`
}

// TicketPage is one page of a ticket listing.
type TicketPage struct {
	Tickets []Ticket `json:"tickets"`
	Meta    Meta     `json:"meta"`
}

// NextPageNumber returns meta.next_page, or total_pages+1 once the listing is exhausted.
func (p *TicketPage) NextPageNumber() int {
	if p.Meta.NextPage != nil && *p.Meta.NextPage > 0 {
		return *p.Meta.NextPage
	}
	return p.Meta.TotalPages + 1
}

// TicketQuery selects a page of the ticket listing.
type TicketQuery struct {
	Sort      string
	Direction string
	Page      int
	PageSize  int
	View      string
}
