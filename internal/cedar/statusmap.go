package cedar

import (
	"fmt"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// StatusFlags is the fixed boolean flag set Cedar attaches to each WO status.
type StatusFlags struct {
	Wait        bool
	Approve     bool
	NotApproved bool
	History     bool
	Cancel      bool
}

// StatusMapping is the external counterpart of one internal lifecycle state.
type StatusMapping struct {
	Code    string
	Numeric int
	Flags   StatusFlags
}

// MappingTable translates internal ticket states into Cedar's status
// vocabulary. It is injected into the sync engine at construction so tests
// can substitute tables; there is no global. The table is the external wire
// contract: changing an entry changes how Cedar interprets ticket state.
type MappingTable struct {
	Version string
	// Default names the internal state whose entry is used for unknown
	// states, rather than failing the whole sync operation.
	Default domain.TicketStatus
	Entries map[domain.TicketStatus]StatusMapping
}

// Lookup returns the mapping for the state, falling back to the default entry
// for states outside the table.
func (t MappingTable) Lookup(status domain.TicketStatus) StatusMapping {
	if m, ok := t.Entries[status]; ok {
		return m
	}
	return t.Entries[t.Default]
}

// Validate checks the two mapping invariants: totality (every lifecycle state
// has an entry) and injectivity of codes (reverse mapping must be
// unambiguous, or status round-tripping breaks).
func (t MappingTable) Validate() error {
	if _, ok := t.Entries[t.Default]; !ok {
		return fmt.Errorf("cedar mapping %s: default state %s has no entry", t.Version, t.Default)
	}
	seen := make(map[string]domain.TicketStatus, len(t.Entries))
	for _, status := range domain.AllTicketStatuses {
		m, ok := t.Entries[status]
		if !ok {
			return fmt.Errorf("cedar mapping %s: no entry for state %s", t.Version, status)
		}
		if prev, dup := seen[m.Code]; dup {
			return fmt.Errorf("cedar mapping %s: states %s and %s share code %s", t.Version, prev, status, m.Code)
		}
		seen[m.Code] = status
	}
	return nil
}

// DefaultMappingTable returns the production translation table.
func DefaultMappingTable(version string) MappingTable {
	return MappingTable{
		Version: version,
		Default: domain.TicketStatusOpen,
		Entries: map[domain.TicketStatus]StatusMapping{
			domain.TicketStatusOpen: {
				Code: "WAPPR", Numeric: 10, Flags: StatusFlags{Wait: true},
			},
			domain.TicketStatusAssigned: {
				Code: "APPR", Numeric: 20, Flags: StatusFlags{Approve: true},
			},
			domain.TicketStatusInProgress: {
				Code: "INPRG", Numeric: 30, Flags: StatusFlags{Approve: true},
			},
			domain.TicketStatusEscalated: {
				Code: "ESC", Numeric: 35, Flags: StatusFlags{Wait: true, Approve: true},
			},
			domain.TicketStatusResolved: {
				Code: "FINISH", Numeric: 40, Flags: StatusFlags{Approve: true},
			},
			domain.TicketStatusRejectedPendingReview: {
				Code: "WREJ", Numeric: 45, Flags: StatusFlags{Wait: true, NotApproved: true},
			},
			domain.TicketStatusRejectedFinal: {
				Code: "REJ", Numeric: 50, Flags: StatusFlags{NotApproved: true, History: true, Cancel: true},
			},
			domain.TicketStatusReviewed: {
				Code: "REVIEW", Numeric: 60, Flags: StatusFlags{Approve: true},
			},
			domain.TicketStatusCompleted: {
				Code: "COMP", Numeric: 70, Flags: StatusFlags{Approve: true, History: true},
			},
			domain.TicketStatusClosed: {
				Code: "CLOSE", Numeric: 80, Flags: StatusFlags{History: true},
			},
			domain.TicketStatusReopenedInProgress: {
				Code: "REOPEN", Numeric: 90, Flags: StatusFlags{Approve: true},
			},
		},
	}
}
