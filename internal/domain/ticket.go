package domain

import "time"

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	TicketStatusOpen                  TicketStatus = "OPEN"
	TicketStatusAssigned              TicketStatus = "ASSIGNED"
	TicketStatusInProgress            TicketStatus = "IN_PROGRESS"
	TicketStatusEscalated             TicketStatus = "ESCALATED"
	TicketStatusResolved              TicketStatus = "RESOLVED"
	TicketStatusRejectedPendingReview TicketStatus = "REJECTED_PENDING_REVIEW"
	TicketStatusRejectedFinal         TicketStatus = "REJECTED_FINAL"
	TicketStatusReviewed              TicketStatus = "REVIEWED"
	TicketStatusCompleted             TicketStatus = "COMPLETED"
	TicketStatusClosed                TicketStatus = "CLOSED"
	TicketStatusReopenedInProgress    TicketStatus = "REOPENED_IN_PROGRESS"
)

// AllTicketStatuses lists every lifecycle state. The Cedar status mapping is
// validated for totality against this slice.
var AllTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusEscalated,
	TicketStatusResolved,
	TicketStatusRejectedPendingReview,
	TicketStatusRejectedFinal,
	TicketStatusReviewed,
	TicketStatusCompleted,
	TicketStatusClosed,
	TicketStatusReopenedInProgress,
}

// TicketSeverity describes impact of the reported problem.
type TicketSeverity string

const (
	TicketSeverityLow      TicketSeverity = "LOW"
	TicketSeverityMedium   TicketSeverity = "MEDIUM"
	TicketSeverityHigh     TicketSeverity = "HIGH"
	TicketSeverityCritical TicketSeverity = "CRITICAL"
)

// TicketPriority enumerates planning urgency.
type TicketPriority string

const (
	TicketPriorityP1 TicketPriority = "P1"
	TicketPriorityP2 TicketPriority = "P2"
	TicketPriorityP3 TicketPriority = "P3"
	TicketPriorityP4 TicketPriority = "P4"
)

// StagePair records who performed a lifecycle stage and when. Both fields are
// set together by the state machine, never separately.
type StagePair struct {
	At *time.Time
	By *string
}

// Set returns whether the stage has been reached.
func (p StagePair) Set() bool {
	return p.At != nil && p.By != nil
}

// Ticket is the aggregate for maintenance requests. The authoritative Work
// Order record lives in Cedar; ExternalWOID references it once created.
type Ticket struct {
	ID           string
	TicketNumber string
	Title        string
	Description  string
	Status       TicketStatus
	Severity     TicketSeverity
	Priority     TicketPriority
	Location     Location
	ReporterID   string
	AssigneeID   *string

	Accepted  StagePair
	Escalated StagePair
	Finished  StagePair
	Reviewed  StagePair
	Rejected  StagePair
	Closed    StagePair
	Reopened  StagePair

	// ExternalWOID is set at most once, on the first successful create-path
	// sync. Every later external operation is an update against it.
	ExternalWOID *string

	CostAvoidance          *float64
	DowntimeAvoidedMinutes *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a shallow copy safe for state-machine mutation.
func (t *Ticket) Clone() *Ticket {
	copied := *t
	return &copied
}
