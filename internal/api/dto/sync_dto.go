package dto

import (
	"time"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// IntegrationLogEntryResponse is one sync attempt record.
type IntegrationLogEntryResponse struct {
	ID                 string    `json:"id"`
	TicketID           string    `json:"ticket_id"`
	Action             string    `json:"action"`
	ExternalWOID       *string   `json:"external_wo_id,omitempty"`
	PayloadFingerprint string    `json:"payload_fingerprint"`
	Result             string    `json:"result"`
	ErrorDetail        *string   `json:"error_detail,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// FromLogEntry maps the domain entry onto the response shape.
func FromLogEntry(e domain.IntegrationLogEntry) IntegrationLogEntryResponse {
	return IntegrationLogEntryResponse{
		ID:                 e.ID,
		TicketID:           e.TicketID,
		Action:             e.Action,
		ExternalWOID:       e.ExternalWOID,
		PayloadFingerprint: e.PayloadFingerprint,
		Result:             string(e.Result),
		ErrorDetail:        e.ErrorDetail,
		CreatedAt:          e.CreatedAt,
	}
}
