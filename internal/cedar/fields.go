package cedar

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WOFieldSet is the typed builder for a Cedar WO update. The updated-by,
// updated-at and workflow-step fields are always written; every other field is
// included only when supplied, so a partial payload never clobbers unrelated
// columns on the external record.
type WOFieldSet struct {
	UpdatedBy    string
	UpdatedAt    time.Time
	WorkflowStep string

	StatusCode    *string
	StatusNumeric *int
	Flags         *StatusFlags

	ActualStart            *time.Time
	ActualFinish           *time.Time
	ActualDurationMinutes  *int
	CauseText              *string
	ProcedureText          *string
	CostAvoidance          *float64
	DowntimeAvoidedMinutes *int
}

// WithMapping fills the status triple from a mapping entry.
func (f WOFieldSet) WithMapping(m StatusMapping) WOFieldSet {
	code := m.Code
	numeric := m.Numeric
	flags := m.Flags
	f.StatusCode = &code
	f.StatusNumeric = &numeric
	f.Flags = &flags
	return f
}

// Build produces the concrete column/value lists for the UPDATE statement, in
// a fixed order so identical inputs always render identically.
func (f WOFieldSet) Build() (columns []string, args []any) {
	add := func(col string, val any) {
		columns = append(columns, col)
		args = append(args, val)
	}

	add("updated_by", f.UpdatedBy)
	add("updated_at", f.UpdatedAt)
	add("workflow_step", f.WorkflowStep)

	if f.StatusCode != nil {
		add("status_code", *f.StatusCode)
	}
	if f.StatusNumeric != nil {
		add("status_num", *f.StatusNumeric)
	}
	if f.Flags != nil {
		add("flag_wait", f.Flags.Wait)
		add("flag_approve", f.Flags.Approve)
		add("flag_not_approved", f.Flags.NotApproved)
		add("flag_history", f.Flags.History)
		add("flag_cancel", f.Flags.Cancel)
	}
	if f.ActualStart != nil {
		add("actual_start", *f.ActualStart)
	}
	if f.ActualFinish != nil {
		add("actual_finish", *f.ActualFinish)
	}
	if f.ActualDurationMinutes != nil {
		add("actual_duration_min", *f.ActualDurationMinutes)
	}
	if f.CauseText != nil {
		add("cause_text", *f.CauseText)
	}
	if f.ProcedureText != nil {
		add("procedure_text", *f.ProcedureText)
	}
	if f.CostAvoidance != nil {
		add("cost_avoidance", *f.CostAvoidance)
	}
	if f.DowntimeAvoidedMinutes != nil {
		add("downtime_avoided_min", *f.DowntimeAvoidedMinutes)
	}
	return columns, args
}

// SetClause renders the parameterized SET clause starting at placeholder
// $startIndex.
func SetClause(columns []string, startIndex int) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s=$%d", col, startIndex+i)
	}
	return strings.Join(parts, ", ")
}

// Fingerprint hashes the rendered field set so the integration log can record
// exactly what was sent without storing the full payload.
func (f WOFieldSet) Fingerprint() string {
	columns, args := f.Build()
	payload := struct {
		Columns []string `json:"columns"`
		Args    []any    `json:"args"`
	}{Columns: columns, Args: args}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(strings.Join(columns, ","))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
