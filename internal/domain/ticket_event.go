package domain

// Webhook triggers with lifecycle meaning. Any other trigger only updates fields.
const (
	TriggerTicketVoided   = "ticket.voided"
	TriggerTicketUnvoided = "ticket.unvoided"
)

// TicketEvent is one observation of a remote ticket, from the bulk sync or a webhook.
// Trigger is empty for bulk sync.
type TicketEvent struct {
	ReferenceID  string `json:"reference_id"`
	ReleaseTitle string `json:"release_title"`
	ReleaseID    string `json:"release_id"`
	StateName    string `json:"state_name"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Trigger      string `json:"trigger,omitempty"`
}

// ReconcileAction names what reconciliation did to the ticket row.
type ReconcileAction string

const (
	ActionCreated    ReconcileAction = "created"
	ActionUpdated    ReconcileAction = "updated"
	ActionReassigned ReconcileAction = "reassigned"
)

// ReconciliationOutcome summarizes a single reconciliation.
type ReconciliationOutcome struct {
	Action   ReconcileAction `json:"action"`
	TicketID string          `json:"ticket_id"`
	UserID   string          `json:"user_id"`
	Voided   bool            `json:"voided"`
	Restored bool            `json:"restored"`
}
