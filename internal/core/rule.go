package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/automation/internal/model"
)

const ruleColumns = `id, tenant_id, name, description, status, trigger_type, trigger_config, is_enabled, run_once,
	max_executions, execution_count, start_date, end_date, last_triggered, priority, timeout_seconds,
	created_by, created_at, updated_at`

// RuleService persists automation rules and their execution counters.
type RuleService struct {
	db DB
}

func NewRuleService(db DB) *RuleService {
	return &RuleService{db: db}
}

func ruleDest(r *model.Rule) []any {
	return []any{&r.ID, &r.TenantID, &r.Name, &r.Description, &r.Status, &r.TriggerType,
		&r.TriggerConfig, &r.Enabled, &r.RunOnce, &r.MaxExecutions, &r.ExecutionCount,
		&r.StartDate, &r.EndDate, &r.LastTriggered, &r.Priority, &r.TimeoutSeconds,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt}
}

func scanRule(row pgx.Row, r *model.Rule) error {
	return row.Scan(ruleDest(r)...)
}

func (s *RuleService) Create(ctx context.Context, r *model.Rule) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO automation_rules (id, tenant_id, name, description, status, trigger_type, trigger_config, is_enabled, run_once,
		 max_executions, execution_count, start_date, end_date, priority, timeout_seconds, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		r.ID, r.TenantID, r.Name, r.Description, r.Status, r.TriggerType, r.TriggerConfig,
		r.Enabled, r.RunOnce, r.MaxExecutions, r.ExecutionCount, r.StartDate, r.EndDate,
		r.Priority, r.TimeoutSeconds, r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Upsert creates the rule or, when the tenant already has a rule with the
// same name, replaces its definition. The execution counter is kept. It
// returns the id of the stored rule.
func (s *RuleService) Upsert(ctx context.Context, r *model.Rule) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO automation_rules (id, tenant_id, name, description, status, trigger_type, trigger_config, is_enabled, run_once,
		 max_executions, start_date, end_date, priority, timeout_seconds, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		 ON CONFLICT (tenant_id, name) DO UPDATE SET
		   description = EXCLUDED.description, status = EXCLUDED.status, trigger_type = EXCLUDED.trigger_type,
		   trigger_config = EXCLUDED.trigger_config, is_enabled = EXCLUDED.is_enabled, run_once = EXCLUDED.run_once,
		   max_executions = EXCLUDED.max_executions, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
		   priority = EXCLUDED.priority, timeout_seconds = EXCLUDED.timeout_seconds, updated_at = now()
		 RETURNING id`,
		r.ID, r.TenantID, r.Name, r.Description, r.Status, r.TriggerType, r.TriggerConfig,
		r.Enabled, r.RunOnce, r.MaxExecutions, r.StartDate, r.EndDate,
		r.Priority, r.TimeoutSeconds, r.CreatedBy,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert rule %q: %w", r.Name, err)
	}
	return id, nil
}

// GetRule returns a rule scoped to its tenant.
func (s *RuleService) GetRule(ctx context.Context, tenantID, ruleID string) (*model.Rule, error) {
	var r model.Rule
	err := scanRule(s.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE tenant_id = $1 AND id = $2`, tenantID, ruleID,
	), &r)
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", ruleID, notFound(err))
	}
	return &r, nil
}

// ListActiveRules returns enabled rules in the active status, highest
// priority first. An empty tenantID lists across all tenants.
func (s *RuleService) ListActiveRules(ctx context.Context, tenantID string) ([]model.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE is_enabled AND status = 'active'`
	args := []any{}
	if tenantID != "" {
		query += ` AND tenant_id = $1`
		args = append(args, tenantID)
	}
	query += ` ORDER BY priority, id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := scanRule(rows, &r); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// List retrieves a tenant's rules with cursor-based pagination.
func (s *RuleService) List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.Rule, bool, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list rules for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := scanRule(rows, &r); err != nil {
			return nil, false, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate rules: %w", err)
	}

	hasMore := len(rules) > limit
	if hasMore {
		rules = rules[:limit]
	}
	return rules, hasMore, nil
}

// Toggle flips is_enabled and returns the updated rule.
func (s *RuleService) Toggle(ctx context.Context, tenantID, ruleID string) (*model.Rule, error) {
	var r model.Rule
	err := scanRule(s.db.QueryRow(ctx,
		`UPDATE automation_rules SET is_enabled = NOT is_enabled, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2 RETURNING `+ruleColumns, tenantID, ruleID,
	), &r)
	if err != nil {
		return nil, fmt.Errorf("toggle rule %s: %w", ruleID, notFound(err))
	}
	return &r, nil
}

// ResetCounter zeroes the execution counter so an exhausted rule can run again.
func (s *RuleService) ResetCounter(ctx context.Context, tenantID, ruleID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE automation_rules SET execution_count = 0, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		tenantID, ruleID,
	)
	if err != nil {
		return fmt.Errorf("reset rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reset rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// RecordExecution increments the counter, sets last_triggered and inserts
// the run's log rows in one transaction. The rule row is locked first so
// concurrent workers cannot push the counter past its limit; a run that
// finds the rule already exhausted still gets its logs written.
func (s *RuleService) RecordExecution(ctx context.Context, rec model.ExecutionRecord) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var r model.Rule
		err := tx.QueryRow(ctx,
			`SELECT execution_count, max_executions, run_once FROM automation_rules
			 WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, rec.TenantID, rec.RuleID,
		).Scan(&r.ExecutionCount, &r.MaxExecutions, &r.RunOnce)
		if err != nil {
			return fmt.Errorf("lock rule %s: %w", rec.RuleID, notFound(err))
		}

		if r.Exhausted() {
			_, err = tx.Exec(ctx,
				`UPDATE automation_rules SET last_triggered = $1, updated_at = now() WHERE id = $2`,
				rec.TriggeredAt, rec.RuleID)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE automation_rules SET execution_count = execution_count + 1, last_triggered = $1, updated_at = now() WHERE id = $2`,
				rec.TriggeredAt, rec.RuleID)
		}
		if err != nil {
			return fmt.Errorf("update rule %s counter: %w", rec.RuleID, err)
		}

		for i := range rec.Logs {
			if err := insertLog(ctx, tx, &rec.Logs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, db execer, l *model.ExecutionLog) error {
	_, err := db.Exec(ctx,
		`INSERT INTO automation_logs (id, tenant_id, rule_id, action_id, status, message, execution_time_ms, trigger_data, result_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.TenantID, l.RuleID, l.ActionID, l.Status, l.Message, l.ExecutionTimeMS,
		nullJSON(l.TriggerData), nullJSON(l.ResultData), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// nullJSON keeps empty blobs NULL instead of writing an invalid empty jsonb.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
