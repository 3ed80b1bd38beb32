package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-service/internal/api/dto"
	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/service"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

// ApprovalsHandler exposes authority checks and rule management.
type ApprovalsHandler struct {
	service *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvalService *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{service: approvalService}
}

// Check GET /approvals/check.
func (h *ApprovalsHandler) Check(c *fiber.Ctx) error {
	personID := c.Query("person_id")
	if personID == "" {
		return apperrors.NewValidationError("person_id required", nil)
	}
	level, err := strconv.Atoi(c.Query("level"))
	if err != nil {
		return apperrors.NewValidationError("level must be an integer", nil)
	}
	location := locationFromQuery(c)

	authorized, err := h.service.IsAuthorized(c.UserContext(), personID, level, location)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthorizationResponse{
		PersonID:   personID,
		Level:      level,
		Location:   location.Code(),
		Authorized: authorized,
	}})
}

// AuthorizedPersons GET /approvals/persons.
func (h *ApprovalsHandler) AuthorizedPersons(c *fiber.Ctx) error {
	level, err := strconv.Atoi(c.Query("level"))
	if err != nil {
		return apperrors.NewValidationError("level must be an integer", nil)
	}
	persons, err := h.service.ListAuthorizedPersons(c.UserContext(), level, locationFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": persons})
}

// CreateRule POST /approval-rules.
func (h *ApprovalsHandler) CreateRule(c *fiber.Ctx) error {
	var req dto.CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.service.CreateRule(c.UserContext(), service.RuleCreateInput{
		PersonID:      req.PersonID,
		ApprovalLevel: req.ApprovalLevel,
		Scope: domain.Location{
			PlantCode:   req.PlantCode,
			AreaCode:    req.AreaCode,
			LineCode:    req.LineCode,
			MachineCode: req.MachineCode,
		},
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromRule(*rule)})
}

// DeactivateRule DELETE /approval-rules/:id.
func (h *ApprovalsHandler) DeactivateRule(c *fiber.Ctx) error {
	if err := h.service.DeactivateRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListRules GET /approval-rules.
func (h *ApprovalsHandler) ListRules(c *fiber.Ctx) error {
	personID := c.Query("person_id")
	if personID == "" {
		return apperrors.NewValidationError("person_id required", nil)
	}
	rules, err := h.service.ListRulesForPerson(c.UserContext(), personID)
	if err != nil {
		return err
	}
	items := make([]dto.RuleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, dto.FromRule(rule))
	}
	return c.JSON(fiber.Map{"data": items})
}

func locationFromQuery(c *fiber.Ctx) domain.Location {
	return domain.Location{
		PlantCode:   c.Query("plant"),
		AreaCode:    c.Query("area"),
		LineCode:    c.Query("line"),
		MachineCode: c.Query("machine"),
	}
}
