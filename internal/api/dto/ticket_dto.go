package dto

import (
	"time"

	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Severity    domain.TicketSeverity `json:"severity"`
	Priority    domain.TicketPriority `json:"priority"`
	PlantCode   string                `json:"plant_code"`
	AreaCode    string                `json:"area_code"`
	LineCode    string                `json:"line_code"`
	MachineCode string                `json:"machine_code"`
}

// ActionRequest carries optional fields for a lifecycle action.
type ActionRequest struct {
	Comment                string     `json:"comment"`
	AssigneeID             string     `json:"assignee_id"`
	ActualStart            *time.Time `json:"actual_start"`
	ActualFinish           *time.Time `json:"actual_finish"`
	ActualDurationMinutes  *int       `json:"actual_duration_minutes"`
	CauseText              string     `json:"cause_text"`
	ProcedureText          string     `json:"procedure_text"`
	CostAvoidance          *float64   `json:"cost_avoidance"`
	DowntimeAvoidedMinutes *int       `json:"downtime_avoided_minutes"`
}

// StageResponse is one stage timestamp/actor pair.
type StageResponse struct {
	At *time.Time `json:"at,omitempty"`
	By *string    `json:"by,omitempty"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Status       domain.TicketStatus   `json:"status"`
	Severity     domain.TicketSeverity `json:"severity"`
	Priority     domain.TicketPriority `json:"priority"`
	PlantCode    string                `json:"plant_code"`
	AreaCode     string                `json:"area_code,omitempty"`
	LineCode     string                `json:"line_code,omitempty"`
	MachineCode  string                `json:"machine_code,omitempty"`
	ReporterID   string                `json:"reporter_id"`
	AssigneeID   *string               `json:"assignee_id,omitempty"`

	Accepted  StageResponse `json:"accepted"`
	Escalated StageResponse `json:"escalated"`
	Finished  StageResponse `json:"finished"`
	Reviewed  StageResponse `json:"reviewed"`
	Rejected  StageResponse `json:"rejected"`
	Closed    StageResponse `json:"closed"`
	Reopened  StageResponse `json:"reopened"`

	ExternalWOID           *string  `json:"external_wo_id,omitempty"`
	CostAvoidance          *float64 `json:"cost_avoidance,omitempty"`
	DowntimeAvoidedMinutes *int     `json:"downtime_avoided_minutes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionResponse wraps the committed ticket and any sync warnings.
type ActionResponse struct {
	Ticket   TicketResponse    `json:"ticket"`
	Warnings []service.Warning `json:"warnings,omitempty"`
}

// FromTicket maps the domain aggregate onto the response shape.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		TicketNumber: t.TicketNumber,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Severity:     t.Severity,
		Priority:     t.Priority,
		PlantCode:    t.Location.PlantCode,
		AreaCode:     t.Location.AreaCode,
		LineCode:     t.Location.LineCode,
		MachineCode:  t.Location.MachineCode,
		ReporterID:   t.ReporterID,
		AssigneeID:   t.AssigneeID,

		Accepted:  stage(t.Accepted),
		Escalated: stage(t.Escalated),
		Finished:  stage(t.Finished),
		Reviewed:  stage(t.Reviewed),
		Rejected:  stage(t.Rejected),
		Closed:    stage(t.Closed),
		Reopened:  stage(t.Reopened),

		ExternalWOID:           t.ExternalWOID,
		CostAvoidance:          t.CostAvoidance,
		DowntimeAvoidedMinutes: t.DowntimeAvoidedMinutes,

		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func stage(p domain.StagePair) StageResponse {
	return StageResponse{At: p.At, By: p.By}
}
