package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/automation/internal/model"
)

const scheduleColumns = `s.id, s.rule_id, s.tenant_id, s.frequency, s.start_time, s.timezone, s.cron_expression,
	s.start_date, s.end_date, s.last_run, s.next_run, s.is_active, s.created_at, s.updated_at`

// ScheduleService persists the schedules of time-based rules.
type ScheduleService struct {
	db DB
}

func NewScheduleService(db DB) *ScheduleService {
	return &ScheduleService{db: db}
}

func scheduleDest(s *model.Schedule) []any {
	return []any{&s.ID, &s.RuleID, &s.TenantID, &s.Frequency, &s.StartTime, &s.Timezone, &s.CronExpression,
		&s.StartDate, &s.EndDate, &s.LastRun, &s.NextRun, &s.Active, &s.CreatedAt, &s.UpdatedAt}
}

// ListDueSchedules returns active schedules whose next_run has passed,
// together with their rule. A schedule whose last_run already reached its
// next_run is not due again until next_run is recomputed.
func (s *ScheduleService) ListDueSchedules(ctx context.Context, tenantID string, now time.Time) ([]model.ScheduledRule, error) {
	query := `SELECT ` + scheduleColumns + `,
		r.id, r.tenant_id, r.name, r.description, r.status, r.trigger_type, r.trigger_config, r.is_enabled, r.run_once,
		r.max_executions, r.execution_count, r.start_date, r.end_date, r.last_triggered, r.priority, r.timeout_seconds,
		r.created_by, r.created_at, r.updated_at
		FROM automation_schedules s JOIN automation_rules r ON r.id = s.rule_id
		WHERE s.is_active AND s.next_run <= $1 AND r.is_enabled AND r.status = 'active'
		AND (s.last_run IS NULL OR s.last_run < s.next_run)`
	args := []any{now}
	if tenantID != "" {
		query += ` AND s.tenant_id = $2`
		args = append(args, tenantID)
	}
	query += ` ORDER BY r.priority, s.next_run`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var due []model.ScheduledRule
	for rows.Next() {
		var sr model.ScheduledRule
		dest := append(scheduleDest(&sr.Schedule), ruleDest(&sr.Rule)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan due schedule: %w", err)
		}
		due = append(due, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due schedules: %w", err)
	}
	return due, nil
}

// RecordScheduleRun stores the outcome of a scheduled dispatch. A nil
// NextRun keeps the stored next_run.
func (s *ScheduleService) RecordScheduleRun(ctx context.Context, run model.ScheduleRun) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE automation_schedules SET last_run = $1, next_run = COALESCE($2, next_run), is_active = $3, updated_at = now()
		 WHERE id = $4`,
		run.LastRun, run.NextRun, run.Active, run.ScheduleID,
	)
	if err != nil {
		return fmt.Errorf("record schedule run %s: %w", run.ScheduleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record schedule run %s: %w", run.ScheduleID, ErrNotFound)
	}
	return nil
}

func (s *ScheduleService) GetByRule(ctx context.Context, tenantID, ruleID string) (*model.Schedule, error) {
	var sc model.Schedule
	err := s.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM automation_schedules s WHERE s.tenant_id = $1 AND s.rule_id = $2`,
		tenantID, ruleID,
	).Scan(scheduleDest(&sc)...)
	if err != nil {
		return nil, fmt.Errorf("get schedule for rule %s: %w", ruleID, notFound(err))
	}
	return &sc, nil
}

// Upsert stores the schedule of a rule, replacing any existing one. The
// caller computes NextRun.
func (s *ScheduleService) Upsert(ctx context.Context, sc *model.Schedule) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO automation_schedules (id, rule_id, tenant_id, frequency, start_time, timezone, cron_expression,
		 start_date, end_date, next_run, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		 ON CONFLICT (rule_id) DO UPDATE SET
		   frequency = EXCLUDED.frequency, start_time = EXCLUDED.start_time, timezone = EXCLUDED.timezone,
		   cron_expression = EXCLUDED.cron_expression, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
		   next_run = EXCLUDED.next_run, is_active = EXCLUDED.is_active, updated_at = now()
		 RETURNING id, created_at, updated_at`,
		sc.ID, sc.RuleID, sc.TenantID, sc.Frequency, sc.StartTime, sc.Timezone, sc.CronExpression,
		sc.StartDate, sc.EndDate, sc.NextRun, sc.Active,
	).Scan(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert schedule for rule %s: %w", sc.RuleID, err)
	}
	return nil
}
