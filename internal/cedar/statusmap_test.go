package cedar

import (
	"testing"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

func TestDefaultMappingTableIsValid(t *testing.T) {
	table := DefaultMappingTable("v1")
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	if len(table.Entries) != len(domain.AllTicketStatuses) {
		t.Errorf("entries = %d, want %d", len(table.Entries), len(domain.AllTicketStatuses))
	}
}

func TestValidateRejectsMissingState(t *testing.T) {
	table := DefaultMappingTable("v1")
	delete(table.Entries, domain.TicketStatusEscalated)
	if err := table.Validate(); err == nil {
		t.Fatal("Validate() should fail when a lifecycle state has no entry")
	}
}

func TestValidateRejectsDuplicateCode(t *testing.T) {
	table := DefaultMappingTable("v1")
	entry := table.Entries[domain.TicketStatusClosed]
	entry.Code = table.Entries[domain.TicketStatusOpen].Code
	table.Entries[domain.TicketStatusClosed] = entry
	if err := table.Validate(); err == nil {
		t.Fatal("Validate() should fail when two states share a code")
	}
}

func TestValidateRejectsMissingDefault(t *testing.T) {
	table := DefaultMappingTable("v1")
	table.Default = domain.TicketStatus("UNKNOWN_STATE")
	if err := table.Validate(); err == nil {
		t.Fatal("Validate() should fail when the default state has no entry")
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	table := DefaultMappingTable("v1")

	m := table.Lookup(domain.TicketStatusResolved)
	if m.Code != "FINISH" || m.Numeric != 40 {
		t.Errorf("Lookup(RESOLVED) = %+v, want FINISH/40", m)
	}

	m = table.Lookup(domain.TicketStatus("SOMETHING_NEW"))
	want := table.Entries[table.Default]
	if m != want {
		t.Errorf("Lookup(unknown) = %+v, want default entry %+v", m, want)
	}
}
