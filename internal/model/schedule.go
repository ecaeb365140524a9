package model

import "time"

// Schedule frequencies.
const (
	FrequencyOnce      = "once"
	FrequencyHourly    = "hourly"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"
	FrequencyCustom    = "custom"
)

// Schedule drives a time-based rule. StartTime is a wall-clock "HH:MM" in
// Timezone; NextRun and LastRun are always UTC.
type Schedule struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	TenantID       string     `json:"tenant_id"`
	Frequency      string     `json:"frequency"`
	StartTime      string     `json:"start_time"`
	Timezone       string     `json:"timezone"`
	CronExpression string     `json:"cron_expression,omitempty"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        time.Time  `json:"next_run"`
	Active         bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ScheduledRule pairs a due schedule with its owning rule.
type ScheduledRule struct {
	Schedule Schedule `json:"schedule"`
	Rule     Rule     `json:"rule"`
}

// ScheduleRun is written after a scheduled dispatch. A nil NextRun keeps
// the stored value.
type ScheduleRun struct {
	ScheduleID string     `json:"schedule_id"`
	LastRun    time.Time  `json:"last_run"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	Active     bool       `json:"is_active"`
}
