package core

import (
	"context"
	"fmt"

	"github.com/edvin/automation/internal/model"
)

type ActionService struct {
	db DB
}

func NewActionService(db DB) *ActionService {
	return &ActionService{db: db}
}

func (s *ActionService) Create(ctx context.Context, a *model.Action) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO automation_actions (id, rule_id, name, description, action_type, action_config, is_enabled, execution_order,
		 continue_on_failure, delay_seconds, max_retries, retry_delay_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.RuleID, a.Name, a.Description, a.Type, a.Config, a.Enabled, a.Order,
		a.ContinueOnFailure, a.DelaySeconds, a.MaxRetries, a.RetryDelaySeconds, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// ListActions returns every action of a rule, enabled or not, in execution order.
func (s *ActionService) ListActions(ctx context.Context, tenantID, ruleID string) ([]model.Action, error) {
	rows, err := s.db.Query(ctx,
		`SELECT a.id, a.rule_id, a.name, a.description, a.action_type, a.action_config, a.is_enabled, a.execution_order,
		 a.continue_on_failure, a.delay_seconds, a.max_retries, a.retry_delay_seconds, a.created_at, a.updated_at
		 FROM automation_actions a JOIN automation_rules r ON r.id = a.rule_id
		 WHERE r.tenant_id = $1 AND a.rule_id = $2
		 ORDER BY a.execution_order, a.name`, tenantID, ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		var a model.Action
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Name, &a.Description, &a.Type, &a.Config, &a.Enabled, &a.Order,
			&a.ContinueOnFailure, &a.DelaySeconds, &a.MaxRetries, &a.RetryDelaySeconds, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

// DeleteByRule removes all actions of a rule. Used when a seed file
// replaces a rule's action list.
func (s *ActionService) DeleteByRule(ctx context.Context, ruleID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM automation_actions WHERE rule_id = $1`, ruleID); err != nil {
		return fmt.Errorf("delete actions for rule %s: %w", ruleID, err)
	}
	return nil
}
