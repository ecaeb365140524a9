package model

import (
	"encoding/json"
	"sort"
	"time"
)

// ActionType identifies the side effect an action performs.
type ActionType string

const (
	ActionSendEmail          ActionType = "send_email"
	ActionSendNotification   ActionType = "send_notification"
	ActionCreateTask         ActionType = "create_task"
	ActionUpdateTask         ActionType = "update_task"
	ActionWebhookCall        ActionType = "webhook_call"
	ActionCreateKPIDataPoint ActionType = "create_kpi_datapoint"
	ActionGenerateReport     ActionType = "generate_report"
	ActionAssignUser         ActionType = "assign_user"
	ActionCustomScript       ActionType = "custom_script"
)

type Action struct {
	ID                string          `json:"id"`
	RuleID            string          `json:"rule_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Type              ActionType      `json:"action_type"`
	Config            json.RawMessage `json:"action_config"`
	Enabled           bool            `json:"is_enabled"`
	Order             int             `json:"order"`
	ContinueOnFailure bool            `json:"continue_on_failure"`
	DelaySeconds      int             `json:"delay_seconds"`
	MaxRetries        int             `json:"max_retries"`
	RetryDelaySeconds int             `json:"retry_delay_seconds"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SortActions orders actions by (order, name). The sort is stable so
// actions sharing both keys keep their input order.
func SortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Order != actions[j].Order {
			return actions[i].Order < actions[j].Order
		}
		return actions[i].Name < actions[j].Name
	})
}
