package domain

import "time"

// Approval levels form escalating authority tiers over a ticket.
const (
	ApprovalLevelAssignee    = 2
	ApprovalLevelPlanner     = 3
	ApprovalLevelLineManager = 4
)

// ApprovalRule grants a person authority at one level within a location
// scope. A person may hold many rules across scopes and levels; at most one
// active rule may exist per (person, level, exact scope), enforced at write
// time by the repository.
type ApprovalRule struct {
	ID            string
	PersonID      string
	ApprovalLevel int
	Scope         Location
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Matches reports whether this rule authorizes the person at the given level
// for the given ticket location. Inactive rules never match.
func (r ApprovalRule) Matches(level int, location Location) bool {
	if !r.Active || r.ApprovalLevel != level {
		return false
	}
	return r.Scope.Covers(location)
}
