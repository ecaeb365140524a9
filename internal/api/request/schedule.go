package request

// UpdateSchedule replaces the schedule of a time-based rule. Dates are
// YYYY-MM-DD in the schedule's timezone.
type UpdateSchedule struct {
	Frequency      string  `json:"frequency" validate:"required,oneof=once hourly daily weekly monthly quarterly yearly custom"`
	StartTime      string  `json:"start_time" validate:"required"`
	Timezone       string  `json:"timezone" validate:"omitempty,timezone"`
	CronExpression string  `json:"cron_expression"`
	StartDate      string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive       *bool   `json:"is_active"`
}
