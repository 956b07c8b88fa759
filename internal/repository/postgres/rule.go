package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/database"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

const ruleColumns = `id, tenant_id, name, enabled, priority, condition_logic, conditions, actions, created_at, updated_at`

// RuleRepository implements repository.RuleRepository using PostgreSQL.
type RuleRepository struct {
	pool database.DBTX
}

// NewRuleRepository creates a new PostgreSQL-backed rule repository.
func NewRuleRepository(pool database.DBTX) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// Create inserts a new rule into the database.
func (r *RuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	conditionsJSON, actionsJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rules (id, tenant_id, name, enabled, priority, condition_logic, conditions, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.Name,
		rule.Enabled,
		rule.Priority,
		rule.Logic,
		conditionsJSON,
		actionsJSON,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant's rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE tenant_id = $1 AND id = $2`

	var (
		rule           domain.Rule
		conditionsJSON []byte
		actionsJSON    []byte
	)

	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.Enabled,
		&rule.Priority,
		&rule.Logic,
		&conditionsJSON,
		&actionsJSON,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if err := unmarshalRuleJSON(&rule, conditionsJSON, actionsJSON); err != nil {
		return nil, err
	}

	return &rule, nil
}

// Update modifies an existing rule in the database.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	conditionsJSON, actionsJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE rules
		SET name = $1, enabled = $2, priority = $3, condition_logic = $4,
		    conditions = $5, actions = $6, updated_at = $7
		WHERE tenant_id = $8 AND id = $9`

	ct, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Enabled,
		rule.Priority,
		rule.Logic,
		conditionsJSON,
		actionsJSON,
		rule.UpdatedAt,
		rule.TenantID,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("rule", rule.ID)
	}

	return nil
}

// Delete removes a tenant's rule.
func (r *RuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM rules WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("rule", id)
	}
	return nil
}

// List returns all of a tenant's rules, highest priority first.
func (r *RuleRepository) List(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, id ASC`

	return r.scanRules(ctx, query, tenantID)
}

// ListEnabled returns only the rules the engine should evaluate.
func (r *RuleRepository) ListEnabled(ctx context.Context, tenantID string) ([]domain.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY priority DESC, id ASC`

	return r.scanRules(ctx, query, tenantID)
}

func (r *RuleRepository) scanRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.Rule, 0)

	for rows.Next() {
		var (
			rule           domain.Rule
			conditionsJSON []byte
			actionsJSON    []byte
		)

		if err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&rule.Name,
			&rule.Enabled,
			&rule.Priority,
			&rule.Logic,
			&conditionsJSON,
			&actionsJSON,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}

		if err := unmarshalRuleJSON(&rule, conditionsJSON, actionsJSON); err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}

	return rules, nil
}

func marshalRuleJSON(rule *domain.Rule) (conditions, actions []byte, err error) {
	conditions, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	actions, err = json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	return conditions, actions, nil
}

func unmarshalRuleJSON(rule *domain.Rule, conditionsJSON, actionsJSON []byte) error {
	if conditionsJSON != nil {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	if actionsJSON != nil {
		if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
			return fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	return nil
}
