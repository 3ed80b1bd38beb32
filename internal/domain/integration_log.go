package domain

import "time"

// SyncResult classifies the outcome of one Cedar sync attempt.
type SyncResult string

const (
	SyncResultSuccess SyncResult = "SUCCESS"
	SyncResultFailure SyncResult = "FAILURE"
)

// IntegrationLogEntry is one append-only record of a Cedar sync attempt,
// capturing enough to reconstruct what was sent and why it failed.
type IntegrationLogEntry struct {
	ID                 string
	TicketID           string
	Action             string
	ExternalWOID       *string
	PayloadFingerprint string
	Result             SyncResult
	ErrorDetail        *string
	CreatedAt          time.Time
}

// SyncStatistics aggregates integration-log outcomes for the health surface.
type SyncStatistics struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
