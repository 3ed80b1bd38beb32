package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-service/internal/api/dto"
	"github.com/spec-kit/maintenance-service/internal/auth"
	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/lifecycle"
	"github.com/spec-kit/maintenance-service/internal/repository"
	"github.com/spec-kit/maintenance-service/internal/service"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewAuthenticationRequired("actor required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Priority:    req.Priority,
		Location: domain.Location{
			PlantCode:   req.PlantCode,
			AreaCode:    req.AreaCode,
			LineCode:    req.LineCode,
			MachineCode: req.MachineCode,
		},
	}
	result, err := h.service.CreateTicket(c.UserContext(), actor.PersonID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ActionResponse{
		Ticket:   dto.FromTicket(result.Ticket),
		Warnings: result.Warnings,
	}})
}

// PerformAction POST /tickets/:id/actions/:action.
func (h *TicketsHandler) PerformAction(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewAuthenticationRequired("actor required")
	}
	var req dto.ActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	payload := lifecycle.Payload{
		Comment:                req.Comment,
		AssigneeID:             req.AssigneeID,
		ActualStart:            req.ActualStart,
		ActualFinish:           req.ActualFinish,
		ActualDurationMinutes:  req.ActualDurationMinutes,
		CauseText:              req.CauseText,
		ProcedureText:          req.ProcedureText,
		CostAvoidance:          req.CostAvoidance,
		DowntimeAvoidedMinutes: req.DowntimeAvoidedMinutes,
	}

	action := lifecycle.Action(strings.ToLower(c.Params("action")))
	result, err := h.service.PerformAction(c.UserContext(), c.Params("id"), action, actor.PersonID, payload)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ActionResponse{
		Ticket:   dto.FromTicket(result.Ticket),
		Warnings: result.Warnings,
	}})
}

// GetTicket GET /tickets/:id. The path segment is either the internal id or
// the human-facing ticket number (MT- prefix).
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ref := c.Params("id")

	var (
		ticket *domain.Ticket
		err    error
	)
	if strings.HasPrefix(strings.ToUpper(ref), "MT-") {
		ticket, err = h.service.GetTicketByNumber(c.UserContext(), strings.ToUpper(ref))
	} else {
		ticket, err = h.service.GetTicket(c.UserContext(), ref)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketFilter(c)
	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketFilter(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if v := c.Query("reporter_id"); v != "" {
		filter.ReporterID = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	if v := c.Query("plant"); v != "" {
		filter.PlantCode = &v
	}
	if v := c.Query("area"); v != "" {
		filter.AreaCode = &v
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if v := c.Query("severity"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.Severities = append(filter.Severities, domain.TicketSeverity(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	return filter
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	val := c.Query(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
