package domain

// JobKind names the background work scheduled for a ticket.
type JobKind string

const (
	JobKindNotify   JobKind = "notify"
	JobKindSLACheck JobKind = "sla-check"
)

// TicketQueueName is the only queue the service registers.
const TicketQueueName = "tickets"

var jobIDPrefixes = map[JobKind]string{
	JobKindNotify:   "notify",
	JobKindSLACheck: "sla",
}

// JobID identifies the single pending job of a kind for a ticket. It doubles
// as the idempotency key on enqueue and as the lookup key on cancellation.
type JobID struct {
	Kind     JobKind
	TicketID string
}

// NotifyJobID returns the id of the creation notification job.
func NotifyJobID(ticketID string) JobID {
	return JobID{Kind: JobKindNotify, TicketID: ticketID}
}

// SLAJobID returns the id of the SLA deadline job.
func SLAJobID(ticketID string) JobID {
	return JobID{Kind: JobKindSLACheck, TicketID: ticketID}
}

func (id JobID) String() string {
	return jobIDPrefixes[id.Kind] + ":" + id.TicketID
}

// TicketJobPayload is the payload of every ticket job.
type TicketJobPayload struct {
	TicketID string `json:"ticket_id"`
}
