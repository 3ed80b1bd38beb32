package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/cedar"
	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/events"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

type mockTicketRepository struct {
	tickets       map[string]*domain.Ticket
	nextID        int
	createErr     error
	getErr        error
	setWOIDErr    error
	transitionErr error
}

func newMockTicketRepository() *mockTicketRepository {
	return &mockTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (m *mockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	ticket.ID = fmt.Sprintf("t-%d", m.nextID)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	m.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m *mockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket.Clone(), nil
}

func (m *mockTicketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	for _, ticket := range m.tickets {
		if ticket.TicketNumber == number {
			return ticket.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTicketRepository) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range m.tickets {
		out = append(out, *ticket.Clone())
	}
	return out, nil
}

func (m *mockTicketRepository) ApplyTransition(ctx context.Context, ticket *domain.Ticket, prevStatus domain.TicketStatus) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	stored, ok := m.tickets[ticket.ID]
	if !ok || stored.Status != prevStatus {
		return repository.ErrStatusConflict
	}
	m.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m *mockTicketRepository) SetExternalWOID(ctx context.Context, ticketID, externalWOID string) error {
	if m.setWOIDErr != nil {
		return m.setWOIDErr
	}
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.ExternalWOID != nil {
		return repository.ErrExternalIDAlreadySet
	}
	woID := externalWOID
	ticket.ExternalWOID = &woID
	return nil
}

type mockAuthorizer struct {
	allowed map[string]bool
	err     error
	calls   int
}

func (m *mockAuthorizer) IsAuthorized(ctx context.Context, personID string, level int, location domain.Location) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.allowed[fmt.Sprintf("%s:%d", personID, level)], nil
}

type mockSyncer struct {
	outcome *cedar.Outcome
	err     error
	calls   []lifecycle.Action
}

func (m *mockSyncer) Sync(ctx context.Context, t *domain.Ticket, action lifecycle.Action, p lifecycle.Payload) (*cedar.Outcome, error) {
	m.calls = append(m.calls, action)
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &cedar.Outcome{ExternalWOID: "WO-1001", ExternalStatus: "WAPPR"}, nil
}

type ticketServiceFixture struct {
	svc        *TicketService
	repo       *mockTicketRepository
	authorizer *mockAuthorizer
	syncer     *mockSyncer
	dispatcher events.Dispatcher
}

func newTicketServiceFixture() *ticketServiceFixture {
	repo := newMockTicketRepository()
	authorizer := &mockAuthorizer{allowed: make(map[string]bool)}
	syncer := &mockSyncer{}
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Machine:    lifecycle.NewStateMachine(lifecycle.DefaultGuardLevels()),
		Authorizer: authorizer,
		Syncer:     syncer,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	return &ticketServiceFixture{svc: svc, repo: repo, authorizer: authorizer, syncer: syncer, dispatcher: dispatcher}
}

func (f *ticketServiceFixture) seedTicket(status domain.TicketStatus) *domain.Ticket {
	f.repo.nextID++
	id := fmt.Sprintf("t-%d", f.repo.nextID)
	ticket := &domain.Ticket{
		ID:           id,
		TicketNumber: "MT-SEED0001",
		Title:        "pump leaking",
		Status:       status,
		Severity:     domain.TicketSeverityMedium,
		Priority:     domain.TicketPriorityP3,
		Location:     domain.Location{PlantCode: "P1", AreaCode: "A2"},
		ReporterID:   "reporter-1",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.repo.tickets[id] = ticket
	return ticket
}

func (f *ticketServiceFixture) grant(personID string, level int) {
	f.authorizer.allowed[fmt.Sprintf("%s:%d", personID, level)] = true
}

func TestCreateTicket(t *testing.T) {
	f := newTicketServiceFixture()
	f.syncer.outcome = &cedar.Outcome{ExternalWOID: "WO-1001", ExternalStatus: "WAPPR", Created: true}

	result, err := f.svc.CreateTicket(context.Background(), "reporter-1", TicketCreateInput{
		Title:    "  pump leaking  ",
		Location: domain.Location{PlantCode: "P1"},
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	ticket := result.Ticket
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %s, want OPEN", ticket.Status)
	}
	if ticket.Title != "pump leaking" {
		t.Errorf("title = %q, want trimmed", ticket.Title)
	}
	if ticket.Severity != domain.TicketSeverityMedium || ticket.Priority != domain.TicketPriorityP3 {
		t.Errorf("defaults = %s/%s, want MEDIUM/P3", ticket.Severity, ticket.Priority)
	}
	if len(ticket.TicketNumber) != 11 || ticket.TicketNumber[:3] != "MT-" {
		t.Errorf("ticket number = %q", ticket.TicketNumber)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
	if ticket.ExternalWOID == nil || *ticket.ExternalWOID != "WO-1001" {
		t.Errorf("external wo id = %v, want WO-1001", ticket.ExternalWOID)
	}
	stored := f.repo.tickets[ticket.ID]
	if stored.ExternalWOID == nil || *stored.ExternalWOID != "WO-1001" {
		t.Errorf("stored external wo id = %v, want WO-1001", stored.ExternalWOID)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newTicketServiceFixture()
	ctx := context.Background()

	if _, err := f.svc.CreateTicket(ctx, "reporter-1", TicketCreateInput{Location: domain.Location{PlantCode: "P1"}}); !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("missing title: error = %v, want VALIDATION_FAILED", err)
	}
	if _, err := f.svc.CreateTicket(ctx, "reporter-1", TicketCreateInput{Title: "pump"}); !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("missing plant: error = %v, want VALIDATION_FAILED", err)
	}
	if len(f.syncer.calls) != 0 {
		t.Error("rejected create must not sync")
	}
}

func TestCreateTicketSyncFailureIsWarning(t *testing.T) {
	f := newTicketServiceFixture()
	f.syncer.err = apperrors.NewExternalSyncFailure("cedar unreachable", errors.New("dial timeout"))

	result, err := f.svc.CreateTicket(context.Background(), "reporter-1", TicketCreateInput{
		Title:    "pump leaking",
		Location: domain.Location{PlantCode: "P1"},
	})
	if err != nil {
		t.Fatalf("CreateTicket must commit despite sync failure: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != "EXTERNAL_SYNC_FAILURE" {
		t.Fatalf("warnings = %v, want one EXTERNAL_SYNC_FAILURE", result.Warnings)
	}
	if result.Ticket.ExternalWOID != nil {
		t.Error("failed sync must leave the ticket without an external reference")
	}
	if _, ok := f.repo.tickets[result.Ticket.ID]; !ok {
		t.Error("ticket must remain committed locally")
	}
}

func TestPerformActionAccept(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)
	f.grant("planner-1", domain.ApprovalLevelAssignee)

	result, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionAccept, "planner-1", lifecycle.Payload{AssigneeID: "tech-7"})
	if err != nil {
		t.Fatalf("PerformAction(accept) failed: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", result.Ticket.Status)
	}
	if result.Ticket.AssigneeID == nil || *result.Ticket.AssigneeID != "tech-7" {
		t.Errorf("assignee = %v, want tech-7", result.Ticket.AssigneeID)
	}
	if !result.Ticket.Accepted.Set() {
		t.Error("accepted stage pair not set")
	}
	if f.repo.tickets[ticket.ID].Status != domain.TicketStatusAssigned {
		t.Error("transition not persisted")
	}
	if len(f.syncer.calls) != 1 || f.syncer.calls[0] != lifecycle.ActionAccept {
		t.Errorf("sync calls = %v, want [accept]", f.syncer.calls)
	}
}

func TestPerformActionUnauthorized(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)

	_, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionAccept, "stranger", lifecycle.Payload{})
	if !apperrors.HasCode(err, "UNAUTHORIZED") {
		t.Fatalf("error = %v, want UNAUTHORIZED", err)
	}
	if f.repo.tickets[ticket.ID].Status != domain.TicketStatusOpen {
		t.Error("unauthorized action must not change status")
	}
	if len(f.syncer.calls) != 0 {
		t.Error("unauthorized action must not sync")
	}
}

func TestPerformActionIllegalTransition(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusClosed)
	f.grant("planner-1", domain.ApprovalLevelPlanner)

	_, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionClose, "planner-1", lifecycle.Payload{})
	if !apperrors.HasCode(err, "INVALID_TRANSITION") {
		t.Fatalf("error = %v, want INVALID_TRANSITION", err)
	}
	if f.repo.tickets[ticket.ID].Status != domain.TicketStatusClosed {
		t.Error("illegal action must not change status")
	}
}

func TestPerformActionUnknownAction(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)

	_, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.Action("obliterate"), "planner-1", lifecycle.Payload{})
	if !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("error = %v, want VALIDATION_FAILED", err)
	}
}

func TestPerformActionTicketNotFound(t *testing.T) {
	f := newTicketServiceFixture()

	_, err := f.svc.PerformAction(context.Background(), "t-missing", lifecycle.ActionAccept, "planner-1", lifecycle.Payload{})
	if !apperrors.HasCode(err, "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestPerformActionConcurrentStatusChange(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)
	f.grant("planner-1", domain.ApprovalLevelAssignee)
	f.repo.transitionErr = repository.ErrStatusConflict

	_, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionAccept, "planner-1", lifecycle.Payload{})
	if !apperrors.HasCode(err, "INVALID_TRANSITION") {
		t.Fatalf("error = %v, want INVALID_TRANSITION on lost update", err)
	}
	if len(f.syncer.calls) != 0 {
		t.Error("lost update must not sync")
	}
}

func TestPerformActionSyncFailureIsWarning(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusReviewed)
	woID := "WO-1001"
	ticket.ExternalWOID = &woID
	f.grant("planner-1", domain.ApprovalLevelPlanner)
	f.syncer.err = apperrors.NewExternalSyncFailure("cedar unreachable", errors.New("dial timeout"))

	result, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionClose, "planner-1", lifecycle.Payload{})
	if err != nil {
		t.Fatalf("PerformAction must commit despite sync failure: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusClosed {
		t.Errorf("status = %s, want CLOSED", result.Ticket.Status)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != "EXTERNAL_SYNC_FAILURE" {
		t.Errorf("warnings = %v, want one EXTERNAL_SYNC_FAILURE", result.Warnings)
	}
	if f.repo.tickets[ticket.ID].Status != domain.TicketStatusClosed {
		t.Error("local state must stand regardless of sync outcome")
	}
}

func TestPerformActionReopenByReporter(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusClosed)

	// The reporter holds no approval rule at all.
	result, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionReopen, "reporter-1", lifecycle.Payload{})
	if err != nil {
		t.Fatalf("reopen by reporter failed: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusReopenedInProgress {
		t.Errorf("status = %s, want REOPENED_IN_PROGRESS", result.Ticket.Status)
	}
	if f.authorizer.calls != 0 {
		t.Error("reporter reopen must bypass the approval check")
	}

	// Anyone else still needs reopen-level authority.
	ticket2 := f.seedTicket(domain.TicketStatusClosed)
	if _, err := f.svc.PerformAction(context.Background(), ticket2.ID, lifecycle.ActionReopen, "stranger", lifecycle.Payload{}); !apperrors.HasCode(err, "UNAUTHORIZED") {
		t.Errorf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestExternalWOIDIsSetOnce(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)
	woID := "WO-EXISTING"
	f.repo.tickets[ticket.ID].ExternalWOID = &woID
	f.grant("planner-1", domain.ApprovalLevelAssignee)
	f.syncer.outcome = &cedar.Outcome{ExternalWOID: "WO-NEW", ExternalStatus: "APPR", Created: true}

	result, err := f.svc.PerformAction(context.Background(), ticket.ID, lifecycle.ActionAccept, "planner-1", lifecycle.Payload{})
	if err != nil {
		t.Fatalf("PerformAction failed: %v", err)
	}
	// The repository refuses the second write; the original reference stands
	// and the action still succeeds.
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
	if *f.repo.tickets[ticket.ID].ExternalWOID != "WO-EXISTING" {
		t.Errorf("external wo id = %s, want WO-EXISTING preserved", *f.repo.tickets[ticket.ID].ExternalWOID)
	}
}

func TestGetTicketByNumber(t *testing.T) {
	f := newTicketServiceFixture()
	ticket := f.seedTicket(domain.TicketStatusOpen)

	found, err := f.svc.GetTicketByNumber(context.Background(), ticket.TicketNumber)
	if err != nil {
		t.Fatalf("GetTicketByNumber failed: %v", err)
	}
	if found.ID != ticket.ID {
		t.Errorf("ticket id = %s, want %s", found.ID, ticket.ID)
	}

	if _, err := f.svc.GetTicketByNumber(context.Background(), "MT-NOPE0000"); !apperrors.HasCode(err, "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	f := newTicketServiceFixture()
	if _, err := f.svc.GetTicket(context.Background(), "t-missing"); !apperrors.HasCode(err, "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}
