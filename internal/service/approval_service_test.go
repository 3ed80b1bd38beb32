package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

type mockRuleRepository struct {
	rules     map[string]*domain.ApprovalRule
	nextID    int
	createErr error
	listErr   error
}

func newMockRuleRepository() *mockRuleRepository {
	return &mockRuleRepository{rules: make(map[string]*domain.ApprovalRule)}
}

func (m *mockRuleRepository) Create(ctx context.Context, rule *domain.ApprovalRule) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.rules {
		if existing.Active && existing.PersonID == rule.PersonID &&
			existing.ApprovalLevel == rule.ApprovalLevel && existing.Scope == rule.Scope {
			return repository.ErrDuplicateActiveRule
		}
	}
	m.nextID++
	rule.ID = fmt.Sprintf("rule-%d", m.nextID)
	copied := *rule
	m.rules[rule.ID] = &copied
	return nil
}

func (m *mockRuleRepository) Deactivate(ctx context.Context, id string) error {
	rule, ok := m.rules[id]
	if !ok {
		return errors.New("no rows in result set")
	}
	rule.Active = false
	return nil
}

func (m *mockRuleRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	copied := *rule
	return &copied, nil
}

func (m *mockRuleRepository) ListByPerson(ctx context.Context, personID string) ([]domain.ApprovalRule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ApprovalRule
	for _, rule := range m.rules {
		if rule.PersonID == personID {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (m *mockRuleRepository) ListActiveForPersonLevel(ctx context.Context, personID string, level int) ([]domain.ApprovalRule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ApprovalRule
	for _, rule := range m.rules {
		if rule.Active && rule.PersonID == personID && rule.ApprovalLevel == level {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (m *mockRuleRepository) ListActiveForLevel(ctx context.Context, level int) ([]domain.ApprovalRule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.ApprovalRule
	for _, rule := range m.rules {
		if rule.Active && rule.ApprovalLevel == level {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (m *mockRuleRepository) add(personID string, level int, scope domain.Location, active bool) {
	m.nextID++
	id := fmt.Sprintf("rule-%d", m.nextID)
	m.rules[id] = &domain.ApprovalRule{
		ID:            id,
		PersonID:      personID,
		ApprovalLevel: level,
		Scope:         scope,
		Active:        active,
	}
}

func newTestApprovalService(repo repository.ApprovalRuleRepository) *ApprovalService {
	return NewApprovalService(ApprovalDependencies{
		RuleRepo: repo,
		Logger:   zap.NewNop(),
	})
}

func TestIsAuthorizedPrefixMatching(t *testing.T) {
	repo := newMockRuleRepository()
	repo.add("planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"}, true)
	repo.add("planner-2", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A2"}, true)
	repo.add("planner-3", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A9"}, false)
	svc := newTestApprovalService(repo)
	ctx := context.Background()
	loc := domain.Location{PlantCode: "P1", AreaCode: "A2", LineCode: "L3"}

	tests := []struct {
		name     string
		personID string
		level    int
		location domain.Location
		want     bool
	}{
		{"plant scope covers line", "planner-1", domain.ApprovalLevelPlanner, loc, true},
		{"area scope covers own line", "planner-2", domain.ApprovalLevelPlanner, loc, true},
		{"area scope excludes other area", "planner-2", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A9"}, false},
		{"wrong level denies", "planner-1", domain.ApprovalLevelAssignee, loc, false},
		{"inactive rule denies", "planner-3", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A9"}, false},
		{"unknown person denies", "nobody", domain.ApprovalLevelPlanner, loc, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.IsAuthorized(ctx, tc.personID, tc.level, tc.location)
			if err != nil {
				t.Fatalf("IsAuthorized failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsAuthorized = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsAuthorizedUnionOfOverlappingScopes(t *testing.T) {
	// One broad and one narrow rule for the same person; either matching is
	// enough, the narrower rule never shadows the broader one.
	repo := newMockRuleRepository()
	repo.add("planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"}, true)
	repo.add("planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A2", LineCode: "L3"}, true)
	svc := newTestApprovalService(repo)
	ctx := context.Background()

	ok, err := svc.IsAuthorized(ctx, "planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A7"})
	if err != nil {
		t.Fatalf("IsAuthorized failed: %v", err)
	}
	if !ok {
		t.Error("broad rule must authorize even where the narrow rule does not cover")
	}
}

func TestIsAuthorizedStoreFailure(t *testing.T) {
	repo := newMockRuleRepository()
	repo.listErr = errors.New("connection refused")
	svc := newTestApprovalService(repo)

	_, err := svc.IsAuthorized(context.Background(), "planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"})
	if !apperrors.HasCode(err, "STORE_UNAVAILABLE") {
		t.Errorf("error = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestListAuthorizedPersonsDedupesAndSorts(t *testing.T) {
	repo := newMockRuleRepository()
	repo.add("zoe", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"}, true)
	repo.add("zoe", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A2"}, true)
	repo.add("adam", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"}, true)
	repo.add("mia", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P9"}, true)
	svc := newTestApprovalService(repo)

	persons, err := svc.ListAuthorizedPersons(context.Background(), domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1", AreaCode: "A2"})
	if err != nil {
		t.Fatalf("ListAuthorizedPersons failed: %v", err)
	}
	want := []string{"adam", "zoe"}
	if !reflect.DeepEqual(persons, want) {
		t.Errorf("persons = %v, want %v", persons, want)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	svc := newTestApprovalService(newMockRuleRepository())
	ctx := context.Background()

	if _, err := svc.CreateRule(ctx, RuleCreateInput{ApprovalLevel: 3}); !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("missing person: error = %v, want VALIDATION_FAILED", err)
	}
	if _, err := svc.CreateRule(ctx, RuleCreateInput{PersonID: "p", ApprovalLevel: 1}); !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("level below range: error = %v, want VALIDATION_FAILED", err)
	}
	if _, err := svc.CreateRule(ctx, RuleCreateInput{PersonID: "p", ApprovalLevel: 5}); !apperrors.HasCode(err, "VALIDATION_FAILED") {
		t.Errorf("level above range: error = %v, want VALIDATION_FAILED", err)
	}
}

func TestCreateRuleDuplicateConflict(t *testing.T) {
	repo := newMockRuleRepository()
	svc := newTestApprovalService(repo)
	ctx := context.Background()
	input := RuleCreateInput{
		PersonID:      "planner-1",
		ApprovalLevel: domain.ApprovalLevelPlanner,
		Scope:         domain.Location{PlantCode: "P1"},
	}

	rule, err := svc.CreateRule(ctx, input)
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if !rule.Active || rule.ID == "" {
		t.Errorf("created rule = %+v, want active with id", rule)
	}

	if _, err := svc.CreateRule(ctx, input); !apperrors.HasCode(err, "CONFLICT") {
		t.Errorf("duplicate: error = %v, want CONFLICT", err)
	}
}

func TestDeactivateRuleStopsMatching(t *testing.T) {
	repo := newMockRuleRepository()
	svc := newTestApprovalService(repo)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, RuleCreateInput{
		PersonID:      "planner-1",
		ApprovalLevel: domain.ApprovalLevelPlanner,
		Scope:         domain.Location{PlantCode: "P1"},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if err := svc.DeactivateRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeactivateRule failed: %v", err)
	}

	ok, err := svc.IsAuthorized(ctx, "planner-1", domain.ApprovalLevelPlanner, domain.Location{PlantCode: "P1"})
	if err != nil {
		t.Fatalf("IsAuthorized failed: %v", err)
	}
	if ok {
		t.Error("deactivated rule must not authorize")
	}
}
