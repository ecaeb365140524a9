package activity

import "time"

// PassParams selects the tenant a processing pass covers. An empty TenantID
// covers every tenant.
type PassParams struct {
	TenantID string
}

type ExecuteRuleParams struct {
	TenantID string
	RuleID   string
}

// CleanupParams holds the log retention for DeleteOldExecutionLogs.
type CleanupParams struct {
	RetentionDays int
}

type RecalculateKPIsParams struct {
	TenantID string
	Date     time.Time
}
