package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/domain"
	"github.com/spec-kit/maintenance-service/internal/repository"
	apperrors "github.com/spec-kit/maintenance-service/pkg/util/errorutil"
)

const ruleGenerationKey = "approval:rules:gen"

// ApprovalService resolves approval authority over the asset hierarchy and
// manages the underlying rules.
type ApprovalService struct {
	rules    repository.ApprovalRuleRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// ApprovalDependencies bundles collaborators for the approval service.
type ApprovalDependencies struct {
	RuleRepo repository.ApprovalRuleRepository
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewApprovalService constructs the service. Cache may be nil; lookups then
// always hit the rule store.
func NewApprovalService(deps ApprovalDependencies) *ApprovalService {
	return &ApprovalService{
		rules:    deps.RuleRepo,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		logger:   deps.Logger,
	}
}

// IsAuthorized reports whether the person holds authority at the requested
// level for the location. Any active rule whose scope is a prefix of the
// location authorizes; overlapping rules union into one decision, there is no
// most-specific-wins selection. Zero rules at the level denies.
func (s *ApprovalService) IsAuthorized(ctx context.Context, personID string, level int, location domain.Location) (bool, error) {
	rules, err := s.rules.ListActiveForPersonLevel(ctx, personID, level)
	if err != nil {
		return false, apperrors.NewStoreUnavailable(err)
	}
	for _, rule := range rules {
		if rule.Matches(level, location) {
			return true, nil
		}
	}
	return false, nil
}

// ListAuthorizedPersons returns the deduplicated set of persons holding an
// active rule at the level whose scope covers the location. Used for
// assignment and escalation target suggestion; results are cached briefly.
func (s *ApprovalService) ListAuthorizedPersons(ctx context.Context, level int, location domain.Location) ([]string, error) {
	cacheKey := s.personsCacheKey(ctx, level, location)
	if persons, ok := s.cachedPersons(ctx, cacheKey); ok {
		return persons, nil
	}

	rules, err := s.rules.ListActiveForLevel(ctx, level)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	seen := make(map[string]struct{}, len(rules))
	persons := make([]string, 0, len(rules))
	for _, rule := range rules {
		if !rule.Matches(level, location) {
			continue
		}
		if _, dup := seen[rule.PersonID]; dup {
			continue
		}
		seen[rule.PersonID] = struct{}{}
		persons = append(persons, rule.PersonID)
	}
	sort.Strings(persons)

	s.storePersons(ctx, cacheKey, persons)
	return persons, nil
}

// RuleCreateInput describes a new approval rule.
type RuleCreateInput struct {
	PersonID      string
	ApprovalLevel int
	Scope         domain.Location
}

// CreateRule persists a new active rule. A duplicate active rule for the same
// (person, level, exact scope) is rejected with a conflict.
func (s *ApprovalService) CreateRule(ctx context.Context, input RuleCreateInput) (*domain.ApprovalRule, error) {
	if input.PersonID == "" {
		return nil, apperrors.NewValidationError("person_id required", nil)
	}
	if input.ApprovalLevel < domain.ApprovalLevelAssignee || input.ApprovalLevel > domain.ApprovalLevelLineManager {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("approval_level must be between %d and %d", domain.ApprovalLevelAssignee, domain.ApprovalLevelLineManager),
			map[string]any{"approval_level": input.ApprovalLevel},
		)
	}

	rule := &domain.ApprovalRule{
		PersonID:      input.PersonID,
		ApprovalLevel: input.ApprovalLevel,
		Scope:         input.Scope,
		Active:        true,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveRule) {
			return nil, apperrors.NewConflict("an active rule already exists for this person, level and scope", nil)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	s.bumpGeneration(ctx)
	return rule, nil
}

// DeactivateRule marks a rule inactive; it then never matches again.
func (s *ApprovalService) DeactivateRule(ctx context.Context, id string) error {
	if err := s.rules.Deactivate(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("approval rule", map[string]any{"id": id})
		}
		return apperrors.NewStoreUnavailable(err)
	}
	s.bumpGeneration(ctx)
	return nil
}

// ListRulesForPerson returns all rules (active or not) held by a person.
func (s *ApprovalService) ListRulesForPerson(ctx context.Context, personID string) ([]domain.ApprovalRule, error) {
	rules, err := s.rules.ListByPerson(ctx, personID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return rules, nil
}

// personsCacheKey includes a generation counter bumped on every rule write, so
// cached person lists are invalidated without key scans.
func (s *ApprovalService) personsCacheKey(ctx context.Context, level int, location domain.Location) string {
	gen := int64(0)
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, ruleGenerationKey).Int64(); err == nil {
			gen = val
		}
	}
	return fmt.Sprintf("approval:persons:g%d:l%d:%s", gen, level, location.Code())
}

func (s *ApprovalService) cachedPersons(ctx context.Context, key string) ([]string, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var persons []string
	if err := json.Unmarshal(raw, &persons); err != nil {
		return nil, false
	}
	return persons, true
}

func (s *ApprovalService) storePersons(ctx context.Context, key string, persons []string) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(persons)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("authorized-person cache write failed", zap.Error(err))
	}
}

func (s *ApprovalService) bumpGeneration(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, ruleGenerationKey).Err(); err != nil {
		s.logger.Debug("rule generation bump failed", zap.Error(err))
	}
}
