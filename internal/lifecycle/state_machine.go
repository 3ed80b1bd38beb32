package lifecycle

import (
	"fmt"
	"time"

	"github.com/spec-kit/maintenance-service/internal/domain"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// Action identifies a ticket lifecycle operation.
type Action string

const (
	ActionCreate      Action = "create"
	ActionAccept      Action = "accept"
	ActionStart       Action = "start"
	ActionEscalate    Action = "escalate"
	ActionResolve     Action = "resolve"
	ActionReview      Action = "review"
	ActionComplete    Action = "complete"
	ActionClose       Action = "close"
	ActionReject      Action = "reject"
	ActionRejectFinal Action = "reject_final"
	ActionReopen      Action = "reopen"

	// ActionResync is not a transition; it re-runs the external sync for the
	// ticket's current state.
	ActionResync Action = "resync"
)

// TransitionActions lists every action the state machine accepts. create is
// not a transition; tickets enter the machine in OPEN.
var TransitionActions = []Action{
	ActionAccept,
	ActionStart,
	ActionEscalate,
	ActionResolve,
	ActionReview,
	ActionComplete,
	ActionClose,
	ActionReject,
	ActionRejectFinal,
	ActionReopen,
}

// Payload carries optional action data. Which fields are required depends on
// the action; resolve must supply ActualFinish.
type Payload struct {
	Comment                string
	AssigneeID             string
	ActualStart            *time.Time
	ActualFinish           *time.Time
	ActualDurationMinutes  *int
	CauseText              string
	ProcedureText          string
	CostAvoidance          *float64
	DowntimeAvoidedMinutes *int
}

// GuardLevels configures the approval level each guarded action requires. The
// rejection tiers are deliberately configurable rather than fixed.
type GuardLevels struct {
	Accept      int
	Escalate    int
	Review      int
	Complete    int
	Close       int
	Reject      int
	RejectFinal int
	Reopen      int
}

// DefaultGuardLevels returns the production defaults.
func DefaultGuardLevels() GuardLevels {
	return GuardLevels{
		Accept:      domain.ApprovalLevelAssignee,
		Escalate:    domain.ApprovalLevelPlanner,
		Review:      domain.ApprovalLevelPlanner,
		Complete:    domain.ApprovalLevelPlanner,
		Close:       domain.ApprovalLevelPlanner,
		Reject:      domain.ApprovalLevelAssignee,
		RejectFinal: domain.ApprovalLevelPlanner,
		Reopen:      domain.ApprovalLevelAssignee,
	}
}

var transitions = map[domain.TicketStatus]map[Action]domain.TicketStatus{
	domain.TicketStatusOpen: {
		ActionAccept: domain.TicketStatusAssigned,
	},
	domain.TicketStatusAssigned: {
		ActionStart:    domain.TicketStatusInProgress,
		ActionEscalate: domain.TicketStatusEscalated,
	},
	domain.TicketStatusInProgress: {
		ActionEscalate: domain.TicketStatusEscalated,
		ActionResolve:  domain.TicketStatusResolved,
	},
	domain.TicketStatusEscalated: {
		ActionResolve: domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {
		ActionReview: domain.TicketStatusReviewed,
		ActionReject: domain.TicketStatusRejectedPendingReview,
	},
	domain.TicketStatusRejectedPendingReview: {
		ActionRejectFinal: domain.TicketStatusRejectedFinal,
	},
	domain.TicketStatusReviewed: {
		ActionComplete: domain.TicketStatusCompleted,
		ActionClose:    domain.TicketStatusClosed,
	},
	domain.TicketStatusClosed: {
		ActionReopen: domain.TicketStatusReopenedInProgress,
	},
	domain.TicketStatusRejectedFinal: {
		ActionReopen: domain.TicketStatusReopenedInProgress,
	},
	domain.TicketStatusReopenedInProgress: {
		ActionEscalate: domain.TicketStatusEscalated,
		ActionResolve:  domain.TicketStatusResolved,
	},
	domain.TicketStatusCompleted: {},
}

// StateMachine validates and applies ticket status transitions.
type StateMachine struct {
	guards GuardLevels
}

// NewStateMachine builds a machine with the given guard configuration.
func NewStateMachine(guards GuardLevels) *StateMachine {
	return &StateMachine{guards: guards}
}

// KnownAction reports whether the action is part of the lifecycle vocabulary.
func KnownAction(a Action) bool {
	for _, candidate := range TransitionActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// RequiredLevel returns the approval level the action requires, and whether an
// approval check applies at all. start is guarded by assignee identity inside
// Apply, not by approval level.
func (m *StateMachine) RequiredLevel(a Action) (int, bool) {
	switch a {
	case ActionAccept:
		return m.guards.Accept, true
	case ActionEscalate:
		return m.guards.Escalate, true
	case ActionReview:
		return m.guards.Review, true
	case ActionComplete:
		return m.guards.Complete, true
	case ActionClose:
		return m.guards.Close, true
	case ActionReject:
		return m.guards.Reject, true
	case ActionRejectFinal:
		return m.guards.RejectFinal, true
	case ActionReopen:
		return m.guards.Reopen, true
	default:
		return 0, false
	}
}

// CanTransition reports whether the action is legal from the given status.
func (m *StateMachine) CanTransition(from domain.TicketStatus, a Action) bool {
	_, ok := transitions[from][a]
	return ok
}

// Apply validates the action against the ticket's current status and returns
// a mutated copy with the new status and stage fields set together. The input
// ticket is never modified; a failed call leaves no partial state.
func (m *StateMachine) Apply(t *domain.Ticket, a Action, actorID string, p Payload, now time.Time) (*domain.Ticket, error) {
	next, ok := transitions[t.Status][a]
	if !ok {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("action %q is not legal from status %s", a, t.Status),
			map[string]any{"status": t.Status, "action": a},
		)
	}

	if err := validatePayload(t, a, actorID, p); err != nil {
		return nil, err
	}

	updated := t.Clone()
	updated.Status = next
	updated.UpdatedAt = now
	stamp := stagePair(actorID, now)

	switch a {
	case ActionAccept:
		updated.Accepted = stamp
		assignee := actorID
		if p.AssigneeID != "" {
			assignee = p.AssigneeID
		}
		updated.AssigneeID = &assignee
	case ActionEscalate:
		updated.Escalated = stamp
	case ActionResolve:
		updated.Finished = stamp
		if p.CostAvoidance != nil {
			updated.CostAvoidance = p.CostAvoidance
		}
		if p.DowntimeAvoidedMinutes != nil {
			updated.DowntimeAvoidedMinutes = p.DowntimeAvoidedMinutes
		}
	case ActionReview:
		updated.Reviewed = stamp
	case ActionClose, ActionComplete:
		updated.Closed = stamp
	case ActionReject, ActionRejectFinal:
		updated.Rejected = stamp
	case ActionReopen:
		updated.Reopened = stamp
		updated.Closed = domain.StagePair{}
	}

	return updated, nil
}

func validatePayload(t *domain.Ticket, a Action, actorID string, p Payload) error {
	switch a {
	case ActionStart:
		if t.AssigneeID == nil || *t.AssigneeID != actorID {
			return apperrors.NewUnauthorized("only the assignee may start work", map[string]any{"action": a})
		}
	case ActionResolve:
		if p.ActualFinish == nil {
			return apperrors.NewValidationError("resolve requires actual_finish", map[string]any{"field": "actual_finish"})
		}
	}
	return nil
}

func stagePair(actorID string, now time.Time) domain.StagePair {
	at := now
	by := actorID
	return domain.StagePair{At: &at, By: &by}
}
