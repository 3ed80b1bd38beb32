package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/cedar"
	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/events"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// Authorizer resolves approval authority for guarded actions.
type Authorizer interface {
	IsAuthorized(ctx context.Context, personID string, level int, location domain.Location) (bool, error)
}

// Syncer pushes ticket state to the external work order system.
type Syncer interface {
	Sync(ctx context.Context, t *domain.Ticket, action lifecycle.Action, p lifecycle.Payload) (*cedar.Outcome, error)
}

// Warning is a non-fatal problem attached to an otherwise successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionResult carries the committed ticket plus any warnings from the
// best-effort external sync. The ticket state stands regardless of warnings.
type ActionResult struct {
	Ticket   *domain.Ticket
	Warnings []Warning
}

// TicketService coordinates the ticket lifecycle: authorization, state
// machine transition, local commit, event emission and Cedar sync.
type TicketService struct {
	tickets    repository.TicketRepository
	machine    *lifecycle.StateMachine
	authorizer Authorizer
	syncer     Syncer
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Machine    *lifecycle.StateMachine
	Authorizer Authorizer
	Syncer     Syncer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Severity    domain.TicketSeverity
	Priority    domain.TicketPriority
	Location    domain.Location
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		machine:    deps.Machine,
		authorizer: deps.Authorizer,
		syncer:     deps.Syncer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// CreateTicket records a new maintenance request and runs the create-path
// sync. A failed sync leaves the ticket without an external WO reference and
// is reported as a warning; manual resync picks it up later.
func (s *TicketService) CreateTicket(ctx context.Context, reporterID string, input TicketCreateInput) (*ActionResult, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	if input.Location.PlantCode == "" {
		return nil, apperrors.NewValidationError("plant_code required", nil)
	}
	if input.Severity == "" {
		input.Severity = domain.TicketSeverityMedium
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityP3
	}

	ticket := &domain.Ticket{
		TicketNumber: generateTicketNumber(),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Severity:     input.Severity,
		Priority:     input.Priority,
		Location:     input.Location,
		ReporterID:   reporterID,
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  reporterID,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Severity:     ticket.Severity,
			Priority:     ticket.Priority,
			PlantCode:    ticket.Location.PlantCode,
			Title:        ticket.Title,
		},
	})

	warnings := s.syncAfterCommit(ctx, ticket, lifecycle.ActionCreate, lifecycle.Payload{})
	return &ActionResult{Ticket: ticket, Warnings: warnings}, nil
}

// PerformAction validates and applies one lifecycle action. The local commit
// is the unit of atomicity; Cedar sync runs after it and can only produce
// warnings, never failures.
func (s *TicketService) PerformAction(ctx context.Context, ticketID string, action lifecycle.Action, actorID string, payload lifecycle.Payload) (*ActionResult, error) {
	if !lifecycle.KnownAction(action) {
		return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	if err := s.authorize(ctx, ticket, action, actorID); err != nil {
		return nil, err
	}

	prevStatus := ticket.Status
	updated, err := s.machine.Apply(ticket, action, actorID, payload, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.tickets.ApplyTransition(ctx, updated, prevStatus); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Lost-update race: another actor moved the ticket first.
			return nil, apperrors.NewInvalidTransition(
				"ticket status changed concurrently",
				map[string]any{"expected_status": prevStatus},
			)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketTransitioned,
		TicketID: updated.ID,
		ActorID:  actorID,
		Context: map[string]any{
			"ticket_number": updated.TicketNumber,
			"plant_code":    updated.Location.PlantCode,
		},
		Payload: events.TicketTransitionedPayload{
			Action:    string(action),
			OldStatus: prevStatus,
			NewStatus: updated.Status,
			Comment:   payload.Comment,
		},
	})

	warnings := s.syncAfterCommit(ctx, updated, action, payload)
	return &ActionResult{Ticket: updated, Warnings: warnings}, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return ticket, nil
}

// GetTicketByNumber fetches a ticket by its human-facing number.
func (s *TicketService) GetTicketByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"number": number})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return tickets, nil
}

func (s *TicketService) authorize(ctx context.Context, ticket *domain.Ticket, action lifecycle.Action, actorID string) error {
	level, required := s.machine.RequiredLevel(action)
	if !required {
		return nil
	}
	// Reopen is additionally open to the original reporter, whose chain the
	// approval requirement represents.
	if action == lifecycle.ActionReopen && ticket.ReporterID == actorID {
		return nil
	}
	allowed, err := s.authorizer.IsAuthorized(ctx, actorID, level, ticket.Location)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.NewUnauthorized("actor lacks approval authority for this action", map[string]any{
			"action":         action,
			"required_level": level,
			"location":       ticket.Location.Code(),
		})
	}
	return nil
}

// syncAfterCommit runs the best-effort Cedar sync. Failures degrade to
// warnings; the ticket's committed state is never reverted.
func (s *TicketService) syncAfterCommit(ctx context.Context, ticket *domain.Ticket, action lifecycle.Action, payload lifecycle.Payload) []Warning {
	if s.syncer == nil {
		return nil
	}

	outcome, err := s.syncer.Sync(ctx, ticket, action, payload)
	if err != nil {
		s.logger.Warn("cedar sync failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("action", string(action)),
			zap.Error(err))
		return []Warning{{Code: "EXTERNAL_SYNC_FAILURE", Message: err.Error()}}
	}

	if outcome.Created {
		if err := s.tickets.SetExternalWOID(ctx, ticket.ID, outcome.ExternalWOID); err != nil {
			if errors.Is(err, repository.ErrExternalIDAlreadySet) {
				s.logger.Warn("ticket already references an external work order",
					zap.String("ticket_id", ticket.ID),
					zap.String("wo_id", outcome.ExternalWOID))
			} else {
				s.logger.Error("failed to persist external work order id",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
				return []Warning{{
					Code:    "EXTERNAL_SYNC_FAILURE",
					Message: "work order created but its reference could not be stored; run a resync",
				}}
			}
		} else {
			woID := outcome.ExternalWOID
			ticket.ExternalWOID = &woID
		}
	}
	return nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketNumber() string {
	return "MT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
