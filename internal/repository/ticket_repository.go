package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// ErrStatusConflict signals that a transition update matched no row because
// the ticket's status changed under the caller. Surfaced to callers as an
// invalid transition.
var ErrStatusConflict = errors.New("ticket status changed concurrently")

// ErrExternalIDAlreadySet signals an attempt to overwrite a ticket's Cedar
// work order reference.
var ErrExternalIDAlreadySet = errors.New("external work order id already set")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	ReporterID  *string
	AssigneeID  *string
	PlantCode   *string
	AreaCode    *string
	Statuses    []domain.TicketStatus
	Severities  []domain.TicketSeverity
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ApplyTransition persists the ticket's new status and stage fields in a
	// single statement guarded by the previous status. Returns
	// ErrStatusConflict when the row's status no longer matches prevStatus.
	ApplyTransition(ctx context.Context, ticket *domain.Ticket, prevStatus domain.TicketStatus) error
	// SetExternalWOID stores the Cedar work order reference once. Returns
	// ErrExternalIDAlreadySet when the ticket already has one.
	SetExternalWOID(ctx context.Context, ticketID, externalWOID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, title, description, status, severity, priority,
               plant_code, area_code, line_code, machine_code,
               reporter_id, assignee_id,
               accepted_at, accepted_by, escalated_at, escalated_by,
               finished_at, finished_by, reviewed_at, reviewed_by,
               rejected_at, rejected_by, closed_at, closed_by, reopened_at, reopened_by,
               external_wo_id, cost_avoidance, downtime_avoided_minutes,
               created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, title, description, status, severity, priority,
                             plant_code, area_code, line_code, machine_code, reporter_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Severity,
		ticket.Priority,
		ticket.Location.PlantCode,
		nullable(ticket.Location.AreaCode),
		nullable(ticket.Location.LineCode),
		nullable(ticket.Location.MachineCode),
		ticket.ReporterID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) ApplyTransition(ctx context.Context, ticket *domain.Ticket, prevStatus domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, assignee_id=$2,
            accepted_at=$3, accepted_by=$4, escalated_at=$5, escalated_by=$6,
            finished_at=$7, finished_by=$8, reviewed_at=$9, reviewed_by=$10,
            rejected_at=$11, rejected_by=$12, closed_at=$13, closed_by=$14,
            reopened_at=$15, reopened_by=$16,
            cost_avoidance=$17, downtime_avoided_minutes=$18, updated_at=NOW()
        WHERE id=$19 AND status=$20`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.AssigneeID,
		ticket.Accepted.At, ticket.Accepted.By,
		ticket.Escalated.At, ticket.Escalated.By,
		ticket.Finished.At, ticket.Finished.By,
		ticket.Reviewed.At, ticket.Reviewed.By,
		ticket.Rejected.At, ticket.Rejected.By,
		ticket.Closed.At, ticket.Closed.By,
		ticket.Reopened.At, ticket.Reopened.By,
		ticket.CostAvoidance,
		ticket.DowntimeAvoidedMinutes,
		ticket.ID,
		prevStatus,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ticketRepository) SetExternalWOID(ctx context.Context, ticketID, externalWOID string) error {
	const query = `
        UPDATE tickets SET external_wo_id=$1, updated_at=NOW()
        WHERE id=$2 AND external_wo_id IS NULL`
	cmd, err := r.pool.Exec(ctx, query, externalWOID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExternalIDAlreadySet
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanTicket(row)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.PlantCode != nil {
		args = append(args, *filter.PlantCode)
		clauses = append(clauses, fmt.Sprintf("plant_code=$%d", len(args)))
	}
	if filter.AreaCode != nil {
		args = append(args, *filter.AreaCode)
		clauses = append(clauses, fmt.Sprintf("area_code=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			args = append(args, sev)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var area, line, machine *string
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Severity,
		&ticket.Priority,
		&ticket.Location.PlantCode,
		&area,
		&line,
		&machine,
		&ticket.ReporterID,
		&ticket.AssigneeID,
		&ticket.Accepted.At, &ticket.Accepted.By,
		&ticket.Escalated.At, &ticket.Escalated.By,
		&ticket.Finished.At, &ticket.Finished.By,
		&ticket.Reviewed.At, &ticket.Reviewed.By,
		&ticket.Rejected.At, &ticket.Rejected.By,
		&ticket.Closed.At, &ticket.Closed.By,
		&ticket.Reopened.At, &ticket.Reopened.By,
		&ticket.ExternalWOID,
		&ticket.CostAvoidance,
		&ticket.DowntimeAvoidedMinutes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Location.AreaCode = deref(area)
	ticket.Location.LineCode = deref(line)
	ticket.Location.MachineCode = deref(machine)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
