package model

// Rule lifecycle status constants.
const (
	RuleStatusDraft    = "draft"
	RuleStatusActive   = "active"
	RuleStatusPaused   = "paused"
	RuleStatusArchived = "archived"
)

// Execution log status constants.
const (
	LogStatusSuccess = "success"
	LogStatusError   = "error"
	LogStatusPartial = "partial"
	LogStatusSkipped = "skipped"
)
