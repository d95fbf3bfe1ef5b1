package events

import (
	"time"

	"github.com/spec-kit/ticketdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketNotification EventType = "ticket_notification"
	EventSLABreached        EventType = "sla_breached"
)

// Event represents a domain event emitted by the job processor.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketNotificationPayload describes a newly created ticket.
type TicketNotificationPayload struct {
	Title     string                `json:"title"`
	Priority  domain.TicketPriority `json:"priority"`
	Status    domain.TicketStatus   `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

// SLABreachedPayload describes a ticket left unresolved past its deadline.
type SLABreachedPayload struct {
	Title     string                `json:"title"`
	Priority  domain.TicketPriority `json:"priority"`
	Status    domain.TicketStatus   `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	CheckedAt time.Time             `json:"checked_at"`
}
