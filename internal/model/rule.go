package model

import (
	"encoding/json"
	"time"
)

// TriggerType identifies the condition family a rule evaluates.
type TriggerType string

const (
	TriggerKPIThreshold     TriggerType = "kpi_threshold"
	TriggerTaskStatus       TriggerType = "task_status"
	TriggerProjectMilestone TriggerType = "project_milestone"
	TriggerTimeBased        TriggerType = "time_based"
	TriggerDataAnomaly      TriggerType = "data_anomaly"
	TriggerUserAction       TriggerType = "user_action"
	TriggerExternalEvent    TriggerType = "external_event"
)

// DefaultRuleTimeoutSeconds is used when a rule carries no timeout budget.
const DefaultRuleTimeoutSeconds = 300

type Rule struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Status         string          `json:"status"`
	TriggerType    TriggerType     `json:"trigger_type"`
	TriggerConfig  json.RawMessage `json:"trigger_config"`
	Enabled        bool            `json:"is_enabled"`
	RunOnce        bool            `json:"run_once"`
	MaxExecutions  *int            `json:"max_executions,omitempty"`
	ExecutionCount int             `json:"execution_count"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	LastTriggered  *time.Time      `json:"last_triggered,omitempty"`
	Priority       int             `json:"priority"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ExecutionLimit returns the effective maximum number of executions. A
// run-once rule is limited to one. ok is false when the rule is unlimited;
// a non-positive max_executions is treated as unset.
func (r *Rule) ExecutionLimit() (limit int, ok bool) {
	if r.RunOnce {
		return 1, true
	}
	if r.MaxExecutions != nil && *r.MaxExecutions > 0 {
		return *r.MaxExecutions, true
	}
	return 0, false
}

// Exhausted reports whether the execution counter has reached its limit.
func (r *Rule) Exhausted() bool {
	limit, ok := r.ExecutionLimit()
	return ok && r.ExecutionCount >= limit
}

// Timeout returns the rule's execution budget.
func (r *Rule) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return DefaultRuleTimeoutSeconds * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ExecutionRecord is the atomic write made after a rule ran: the counter
// increment, the last-triggered timestamp and every log row of the run.
type ExecutionRecord struct {
	TenantID    string         `json:"tenant_id"`
	RuleID      string         `json:"rule_id"`
	TriggeredAt time.Time      `json:"triggered_at"`
	Logs        []ExecutionLog `json:"logs"`
}
