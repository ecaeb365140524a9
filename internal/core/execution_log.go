package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/automation/internal/model"
)

const logColumns = `id, tenant_id, rule_id, action_id, status, message, execution_time_ms, trigger_data, result_data, created_at`

// ExecutionLogService reads and appends automation execution logs.
type ExecutionLogService struct {
	db DB
}

func NewExecutionLogService(db DB) *ExecutionLogService {
	return &ExecutionLogService{db: db}
}

func logDest(l *model.ExecutionLog) []any {
	return []any{&l.ID, &l.TenantID, &l.RuleID, &l.ActionID, &l.Status, &l.Message,
		&l.ExecutionTimeMS, &l.TriggerData, &l.ResultData, &l.CreatedAt}
}

// AppendLog writes a log row outside of a rule run, e.g. an evaluation error.
func (s *ExecutionLogService) AppendLog(ctx context.Context, l model.ExecutionLog) error {
	return insertLog(ctx, s.db, &l)
}

// ListByRule returns a rule's logs newest first. The cursor is the id of
// the last log of the previous page.
func (s *ExecutionLogService) ListByRule(ctx context.Context, tenantID, ruleID string, limit int, cursor string) ([]model.ExecutionLog, bool, error) {
	query := `SELECT ` + logColumns + ` FROM automation_logs WHERE tenant_id = $1 AND rule_id = $2`
	args := []any{tenantID, ruleID}
	argIdx := 3

	if cursor != "" {
		query += fmt.Sprintf(` AND (created_at, id) < (SELECT created_at, id FROM automation_logs WHERE id = $%d)`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC, id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list logs for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var logs []model.ExecutionLog
	for rows.Next() {
		var l model.ExecutionLog
		if err := rows.Scan(logDest(&l)...); err != nil {
			return nil, false, fmt.Errorf("scan execution log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate execution logs: %w", err)
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}

// DeleteOlderThan removes logs created before cutoff and returns how many
// rows were deleted.
func (s *ExecutionLogService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM automation_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete execution logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
