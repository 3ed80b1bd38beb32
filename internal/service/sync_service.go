package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/cedar"
	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// CedarGateway is the full engine surface the sync service needs.
type CedarGateway interface {
	Syncer
	FetchStatus(ctx context.Context, woID string) (*cedar.WorkOrderStatus, error)
}

// SyncService exposes the manual resync operation and the integration
// log/statistics surface.
type SyncService struct {
	tickets repository.TicketRepository
	logs    repository.IntegrationLogRepository
	gateway CedarGateway
	logger  *zap.Logger
}

// SyncDependencies bundles collaborators for the sync service.
type SyncDependencies struct {
	TicketRepo repository.TicketRepository
	LogRepo    repository.IntegrationLogRepository
	Gateway    CedarGateway
	Logger     *zap.Logger
}

// NewSyncService constructs the service.
func NewSyncService(deps SyncDependencies) *SyncService {
	return &SyncService{
		tickets: deps.TicketRepo,
		logs:    deps.LogRepo,
		gateway: deps.Gateway,
		logger:  deps.Logger,
	}
}

// Resync re-runs the external sync for the ticket's current state. The
// operation is idempotent: the create path runs only when no external WO
// exists yet, and the update path re-applies the same field values. Unlike
// the in-band sync, the failure is surfaced as an error here because the
// caller explicitly asked for a sync.
func (s *SyncService) Resync(ctx context.Context, ticketID string) (*cedar.Outcome, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.gateway.Sync(ctx, ticket, lifecycle.ActionResync, lifecycle.Payload{})
	if err != nil {
		return nil, err
	}

	if outcome.Created {
		if err := s.tickets.SetExternalWOID(ctx, ticket.ID, outcome.ExternalWOID); err != nil {
			if errors.Is(err, repository.ErrExternalIDAlreadySet) {
				s.logger.Warn("concurrent resync already stored the work order reference",
					zap.String("ticket_id", ticket.ID))
			} else {
				return nil, apperrors.NewStoreUnavailable(err)
			}
		}
	}
	return outcome, nil
}

// ExternalStatus reads the ticket's current Cedar WO fields.
func (s *SyncService) ExternalStatus(ctx context.Context, ticketID string) (*cedar.WorkOrderStatus, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.ExternalWOID == nil {
		return nil, apperrors.NewNotFound("external work order", map[string]any{"ticket_id": ticketID})
	}
	return s.gateway.FetchStatus(ctx, *ticket.ExternalWOID)
}

// Log returns the ticket's integration history.
func (s *SyncService) Log(ctx context.Context, ticketID string, limit, offset int) ([]domain.IntegrationLogEntry, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.logs.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return entries, nil
}

// Statistics aggregates sync outcomes for the health surface.
func (s *SyncService) Statistics(ctx context.Context) (domain.SyncStatistics, error) {
	stats, err := s.logs.Stats(ctx)
	if err != nil {
		return domain.SyncStatistics{}, apperrors.NewStoreUnavailable(err)
	}
	return stats, nil
}

func (s *SyncService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return ticket, nil
}
