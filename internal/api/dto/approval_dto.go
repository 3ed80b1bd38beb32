package dto

import (
	"time"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// CreateRuleRequest payload.
type CreateRuleRequest struct {
	PersonID      string `json:"person_id"`
	ApprovalLevel int    `json:"approval_level"`
	PlantCode     string `json:"plant_code"`
	AreaCode      string `json:"area_code"`
	LineCode      string `json:"line_code"`
	MachineCode   string `json:"machine_code"`
}

// RuleResponse represents one approval rule.
type RuleResponse struct {
	ID            string    `json:"id"`
	PersonID      string    `json:"person_id"`
	ApprovalLevel int       `json:"approval_level"`
	PlantCode     string    `json:"plant_code"`
	AreaCode      string    `json:"area_code,omitempty"`
	LineCode      string    `json:"line_code,omitempty"`
	MachineCode   string    `json:"machine_code,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromRule maps the domain rule onto the response shape.
func FromRule(r domain.ApprovalRule) RuleResponse {
	return RuleResponse{
		ID:            r.ID,
		PersonID:      r.PersonID,
		ApprovalLevel: r.ApprovalLevel,
		PlantCode:     r.Scope.PlantCode,
		AreaCode:      r.Scope.AreaCode,
		LineCode:      r.Scope.LineCode,
		MachineCode:   r.Scope.MachineCode,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
	}
}

// AuthorizationResponse answers an authority check.
type AuthorizationResponse struct {
	PersonID   string `json:"person_id"`
	Level      int    `json:"level"`
	Location   string `json:"location"`
	Authorized bool   `json:"authorized"`
}
