package cedar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// DB is the subset of pgxpool.Pool the engine uses against the Cedar
// database. Narrowed to an interface so tests can substitute a fake.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options configures workflow initiation and call bounds.
type Options struct {
	WorkflowTemplate  string
	WorkflowFirstStep string
	SourceSystem      string
	CallTimeout       time.Duration
}

// Outcome reports one successful sync attempt.
type Outcome struct {
	ExternalWOID   string `json:"external_wo_id"`
	ExternalStatus string `json:"external_status"`
	Created        bool   `json:"created"`
}

// WorkOrderStatus holds the external fields read back from a Cedar WO.
type WorkOrderStatus struct {
	WOID         string      `json:"wo_id"`
	StatusCode   string      `json:"status_code"`
	StatusNum    int         `json:"status_num"`
	WorkflowStep string      `json:"workflow_step"`
	Flags        StatusFlags `json:"flags"`
	UpdatedBy    string      `json:"updated_by"`
	UpdatedAt    *time.Time  `json:"updated_at"`
}

// Engine makes the Cedar WO record reflect a ticket's lifecycle state,
// creating the record on first sync. Each attempt is appended to the
// integration log whether it succeeds or not; log-write failures are
// swallowed so they can never abort the caller's ticket operation.
type Engine struct {
	db      DB
	mapping MappingTable
	opts    Options
	logs    repository.IntegrationLogRepository
	logger  *zap.Logger
}

// NewEngine validates the injected mapping table and builds the engine. db
// may be nil when Cedar is not configured; every sync then fails softly.
func NewEngine(db DB, mapping MappingTable, opts Options, logs repository.IntegrationLogRepository, logger *zap.Logger) (*Engine, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	return &Engine{db: db, mapping: mapping, opts: opts, logs: logs, logger: logger}, nil
}

// Sync pushes the ticket's current state to Cedar. Create path when the
// ticket has no external WO yet, update path otherwise. The returned error is
// always an EXTERNAL_SYNC_FAILURE; the caller's ticket state is already
// committed and must stand regardless.
func (e *Engine) Sync(ctx context.Context, t *domain.Ticket, action lifecycle.Action, p lifecycle.Payload) (*Outcome, error) {
	mapping := e.mapping.Lookup(t.Status)
	fields := e.buildFieldSet(t, action, p, mapping)

	if e.db == nil {
		err := errors.New("cedar connection not configured")
		e.record(ctx, t, action, nil, fields.Fingerprint(), err)
		return nil, apperrors.NewExternalSyncFailure("cedar sync skipped", err)
	}

	if t.ExternalWOID == nil {
		woID, err := e.createWorkOrder(ctx, t, fields)
		if err != nil {
			e.record(ctx, t, action, nil, fields.Fingerprint(), err)
			return nil, apperrors.NewExternalSyncFailure("cedar work order creation failed", err)
		}
		e.record(ctx, t, action, &woID, fields.Fingerprint(), nil)
		return &Outcome{ExternalWOID: woID, ExternalStatus: mapping.Code, Created: true}, nil
	}

	woID := *t.ExternalWOID
	if err := e.updateWorkOrder(ctx, woID, fields); err != nil {
		e.record(ctx, t, action, &woID, fields.Fingerprint(), err)
		return nil, apperrors.NewExternalSyncFailure("cedar work order update failed", err)
	}
	e.record(ctx, t, action, &woID, fields.Fingerprint(), nil)
	return &Outcome{ExternalWOID: woID, ExternalStatus: mapping.Code}, nil
}

// createWorkOrder runs the whole create sequence inside one Cedar
// transaction: header insert, id re-read, workflow initiation. Any failure
// rolls the transaction back entirely; Cedar must never hold a WO without an
// initiated workflow.
func (e *Engine) createWorkOrder(ctx context.Context, t *domain.Ticket, fields WOFieldSet) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	mapping := e.mapping.Lookup(t.Status)
	if _, err := tx.Exec(ctx, `SELECT cedar_wo_insert($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.opts.SourceSystem,
		t.TicketNumber,
		t.Title,
		t.Location.Code(),
		string(t.Severity),
		string(t.Priority),
		mapping.Code,
		mapping.Numeric,
		t.ReporterID,
	); err != nil {
		return "", fmt.Errorf("wo insert: %w", err)
	}

	// The insert procedure does not reliably return the assigned id; re-read
	// it inside the same transaction.
	var woID string
	if err := tx.QueryRow(ctx, `
        SELECT wo_id FROM cedar_work_orders
        WHERE source_system=$1 AND source_ref=$2
        ORDER BY created_at DESC LIMIT 1`,
		e.opts.SourceSystem, t.TicketNumber,
	).Scan(&woID); err != nil {
		return "", fmt.Errorf("wo id re-read: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT cedar_wf_init($1,$2,$3)`,
		woID, e.opts.WorkflowTemplate, e.opts.WorkflowFirstStep,
	); err != nil {
		return "", fmt.Errorf("workflow init: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return woID, nil
}

// updateWorkOrder executes a single dynamic UPDATE containing only the
// supplied fields. Re-running it with the same inputs produces the same row
// state, so a manual retry is always safe.
func (e *Engine) updateWorkOrder(ctx context.Context, woID string, fields WOFieldSet) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	columns, args := fields.Build()
	query := fmt.Sprintf(`UPDATE cedar_work_orders SET %s WHERE wo_id=$%d`,
		SetClause(columns, 1), len(args)+1)
	args = append(args, woID)

	cmd, err := e.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("work order %s not found", woID)
	}
	return nil
}

// FetchStatus reads the WO's current external fields.
func (e *Engine) FetchStatus(ctx context.Context, woID string) (*WorkOrderStatus, error) {
	if e.db == nil {
		return nil, apperrors.NewExternalSyncFailure("cedar connection not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	var status WorkOrderStatus
	err := e.db.QueryRow(ctx, `
        SELECT wo_id, status_code, status_num, workflow_step,
               flag_wait, flag_approve, flag_not_approved, flag_history, flag_cancel,
               updated_by, updated_at
        FROM cedar_work_orders WHERE wo_id=$1`, woID,
	).Scan(
		&status.WOID,
		&status.StatusCode,
		&status.StatusNum,
		&status.WorkflowStep,
		&status.Flags.Wait,
		&status.Flags.Approve,
		&status.Flags.NotApproved,
		&status.Flags.History,
		&status.Flags.Cancel,
		&status.UpdatedBy,
		&status.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("work order", map[string]any{"wo_id": woID})
		}
		return nil, apperrors.NewExternalSyncFailure("cedar status read failed", err)
	}
	return &status, nil
}

// MappingVersion exposes the injected table version for the health surface.
func (e *Engine) MappingVersion() string {
	return e.mapping.Version
}

func (e *Engine) buildFieldSet(t *domain.Ticket, action lifecycle.Action, p lifecycle.Payload, mapping StatusMapping) WOFieldSet {
	actor := t.ReporterID
	if stage := latestStage(t); stage.By != nil {
		actor = *stage.By
	}

	fields := WOFieldSet{
		UpdatedBy:    actor,
		UpdatedAt:    t.UpdatedAt,
		WorkflowStep: workflowStep(action),
	}.WithMapping(mapping)

	if p.ActualStart != nil {
		fields.ActualStart = p.ActualStart
	}
	if p.ActualFinish != nil {
		fields.ActualFinish = p.ActualFinish
	}
	if p.ActualDurationMinutes != nil {
		fields.ActualDurationMinutes = p.ActualDurationMinutes
	}
	if p.CauseText != "" {
		cause := p.CauseText
		fields.CauseText = &cause
	}
	if p.ProcedureText != "" {
		procedure := p.ProcedureText
		fields.ProcedureText = &procedure
	}
	if p.CostAvoidance != nil {
		fields.CostAvoidance = p.CostAvoidance
	}
	if p.DowntimeAvoidedMinutes != nil {
		fields.DowntimeAvoidedMinutes = p.DowntimeAvoidedMinutes
	}
	return fields
}

// latestStage returns the most recently stamped stage pair.
func latestStage(t *domain.Ticket) domain.StagePair {
	latest := domain.StagePair{}
	for _, stage := range []domain.StagePair{
		t.Accepted, t.Escalated, t.Finished, t.Reviewed, t.Rejected, t.Closed, t.Reopened,
	} {
		if !stage.Set() {
			continue
		}
		if latest.At == nil || stage.At.After(*latest.At) {
			latest = stage
		}
	}
	return latest
}

func workflowStep(action lifecycle.Action) string {
	switch action {
	case lifecycle.ActionCreate:
		return "CREATED"
	case lifecycle.ActionAccept:
		return "ACCEPTED"
	case lifecycle.ActionStart:
		return "WORK_STARTED"
	case lifecycle.ActionEscalate:
		return "ESCALATED"
	case lifecycle.ActionResolve:
		return "WORK_FINISHED"
	case lifecycle.ActionReview:
		return "REVIEWED"
	case lifecycle.ActionComplete:
		return "COMPLETED"
	case lifecycle.ActionClose:
		return "CLOSED"
	case lifecycle.ActionReject:
		return "REJECT_PENDING"
	case lifecycle.ActionRejectFinal:
		return "REJECT_FINAL"
	case lifecycle.ActionReopen:
		return "REOPENED"
	default:
		return "RESYNC"
	}
}

func (e *Engine) record(ctx context.Context, t *domain.Ticket, action lifecycle.Action, woID *string, fingerprint string, syncErr error) {
	if e.logs == nil {
		return
	}
	entry := &domain.IntegrationLogEntry{
		TicketID:           t.ID,
		Action:             string(action),
		ExternalWOID:       woID,
		PayloadFingerprint: fingerprint,
		Result:             domain.SyncResultSuccess,
	}
	if syncErr != nil {
		entry.Result = domain.SyncResultFailure
		detail := syncErr.Error()
		entry.ErrorDetail = &detail
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		// Log writes must never abort the caller's ticket operation.
		e.logger.Warn("integration log append failed",
			zap.String("ticket_id", t.ID), zap.Error(err))
	}
}
