package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// ErrDuplicateActiveRule signals a second active rule for the same
// (person, level, exact scope), which the data model forbids.
var ErrDuplicateActiveRule = errors.New("active rule already exists for this scope")

// ApprovalRuleRepository stores approval-authority rules.
type ApprovalRuleRepository interface {
	Create(ctx context.Context, rule *domain.ApprovalRule) error
	Deactivate(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalRule, error)
	ListByPerson(ctx context.Context, personID string) ([]domain.ApprovalRule, error)
	// ListActiveForPersonLevel returns the person's active rules at one level;
	// prefix matching against a ticket location happens in the service.
	ListActiveForPersonLevel(ctx context.Context, personID string, level int) ([]domain.ApprovalRule, error)
	ListActiveForLevel(ctx context.Context, level int) ([]domain.ApprovalRule, error)
}

type approvalRuleRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRuleRepository builds repository.
func NewApprovalRuleRepository(pool *pgxpool.Pool) ApprovalRuleRepository {
	return &approvalRuleRepository{pool: pool}
}

const ruleColumns = `id, person_id, approval_level, plant_code, area_code, line_code, machine_code,
               active, created_at, updated_at`

func (r *approvalRuleRepository) Create(ctx context.Context, rule *domain.ApprovalRule) error {
	const query = `
        INSERT INTO approval_rules (person_id, approval_level, plant_code, area_code, line_code, machine_code, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		rule.PersonID,
		rule.ApprovalLevel,
		rule.Scope.PlantCode,
		rule.Scope.AreaCode,
		rule.Scope.LineCode,
		rule.Scope.MachineCode,
		rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveRule
		}
		return err
	}
	return nil
}

func (r *approvalRuleRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE approval_rules SET active=FALSE, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *approvalRuleRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanRule(row)
}

func (r *approvalRuleRepository) ListByPerson(ctx context.Context, personID string) ([]domain.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE person_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *approvalRuleRepository) ListActiveForPersonLevel(ctx context.Context, personID string, level int) ([]domain.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules
        WHERE person_id=$1 AND approval_level=$2 AND active=TRUE`
	rows, err := r.pool.Query(ctx, query, personID, level)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *approvalRuleRepository) ListActiveForLevel(ctx context.Context, level int) ([]domain.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules
        WHERE approval_level=$1 AND active=TRUE`
	rows, err := r.pool.Query(ctx, query, level)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRule(row pgx.Row) (*domain.ApprovalRule, error) {
	var rule domain.ApprovalRule
	if err := row.Scan(
		&rule.ID,
		&rule.PersonID,
		&rule.ApprovalLevel,
		&rule.Scope.PlantCode,
		&rule.Scope.AreaCode,
		&rule.Scope.LineCode,
		&rule.Scope.MachineCode,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanRules(rows pgx.Rows) ([]domain.ApprovalRule, error) {
	var result []domain.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}
