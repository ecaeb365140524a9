package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/automation/internal/model"
)

// AnalyticsWindow is how far back the analytics endpoint counts log statuses.
const AnalyticsWindow = 30 * 24 * time.Hour

// AutomationStats holds a tenant's aggregate automation figures.
type AutomationStats struct {
	TotalRules      int                  `json:"total_rules"`
	ActiveRules     int                  `json:"active_rules"`
	TotalExecutions int                  `json:"total_executions"`
	OpenAlerts      int                  `json:"open_kpi_alerts"`
	RulesByTrigger  []TriggerCount       `json:"rules_by_trigger_type"`
	LogsByStatus    []StatusCount        `json:"logs_by_status"`
	RecentLogs      []model.ExecutionLog `json:"recent_executions"`
}

// TriggerCount holds a rule count per trigger type.
type TriggerCount struct {
	TriggerType string `json:"trigger_type"`
	Count       int    `json:"count"`
}

// StatusCount holds a count grouped by status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DashboardService queries aggregate automation stats.
type DashboardService struct {
	db DB
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(db DB) *DashboardService {
	return &DashboardService{db: db}
}

// Stats returns the automation analytics of a tenant. Log status counts
// cover logs created since the given time.
func (s *DashboardService) Stats(ctx context.Context, tenantID string, since time.Time) (*AutomationStats, error) {
	const countsQuery = `
		WITH rule_counts AS (
			SELECT count(*) AS total,
			       count(*) FILTER (WHERE is_enabled AND status = 'active') AS active,
			       COALESCE(sum(execution_count), 0) AS executions
			FROM automation_rules WHERE tenant_id = $1
		), open_alerts AS (
			SELECT count(*) AS c FROM kpi_alerts WHERE tenant_id = $1 AND NOT is_resolved
		)
		SELECT
			(SELECT total FROM rule_counts),
			(SELECT active FROM rule_counts),
			(SELECT executions FROM rule_counts),
			(SELECT c FROM open_alerts)`

	stats := &AutomationStats{}
	err := s.db.QueryRow(ctx, countsQuery, tenantID).Scan(
		&stats.TotalRules,
		&stats.ActiveRules,
		&stats.TotalExecutions,
		&stats.OpenAlerts,
	)
	if err != nil {
		return nil, fmt.Errorf("automation counts: %w", err)
	}

	// Rules by trigger type
	rbtRows, err := s.db.Query(ctx,
		`SELECT trigger_type, count(*) FROM automation_rules WHERE tenant_id = $1
		 GROUP BY trigger_type ORDER BY count(*) DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("automation rules by trigger: %w", err)
	}
	defer rbtRows.Close()

	for rbtRows.Next() {
		var tc TriggerCount
		if err := rbtRows.Scan(&tc.TriggerType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan trigger count: %w", err)
		}
		stats.RulesByTrigger = append(stats.RulesByTrigger, tc)
	}
	if err := rbtRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger counts: %w", err)
	}

	// Logs by status
	lbsRows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM automation_logs WHERE tenant_id = $1 AND created_at >= $2
		 GROUP BY status ORDER BY count(*) DESC`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("automation logs by status: %w", err)
	}
	defer lbsRows.Close()

	for lbsRows.Next() {
		var sc StatusCount
		if err := lbsRows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.LogsByStatus = append(stats.LogsByStatus, sc)
	}
	if err := lbsRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	// Recent rule-level executions
	recRows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM automation_logs WHERE tenant_id = $1 AND action_id IS NULL
		 ORDER BY created_at DESC, id DESC LIMIT 10`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("automation recent executions: %w", err)
	}
	defer recRows.Close()

	for recRows.Next() {
		var l model.ExecutionLog
		if err := recRows.Scan(logDest(&l)...); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		stats.RecentLogs = append(stats.RecentLogs, l)
	}
	if err := recRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent executions: %w", err)
	}

	return stats, nil
}
