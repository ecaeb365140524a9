package model

import (
	"encoding/json"
	"time"
)

// ExecutionLog is an append-only record of one rule or action execution attempt.
type ExecutionLog struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	RuleID          string          `json:"rule_id"`
	ActionID        *string         `json:"action_id,omitempty"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	TriggerData     json.RawMessage `json:"trigger_data,omitempty"`
	ResultData      json.RawMessage `json:"result_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
