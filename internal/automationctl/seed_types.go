package automationctl

// SeedConfig is the top level of a rules YAML file.
type SeedConfig struct {
	Tenant    string    `yaml:"tenant" validate:"required"`
	CreatedBy string    `yaml:"created_by"`
	Rules     []RuleDef `yaml:"rules" validate:"dive"`
}

type RuleDef struct {
	Name           string         `yaml:"name" validate:"required,max=200"`
	Description    string         `yaml:"description"`
	TriggerType    string         `yaml:"trigger_type" validate:"required"`
	Trigger        map[string]any `yaml:"trigger"`
	Enabled        *bool          `yaml:"enabled"`
	RunOnce        bool           `yaml:"run_once"`
	MaxExecutions  *int           `yaml:"max_executions" validate:"omitempty,min=1"`
	Priority       int            `yaml:"priority" validate:"min=0"`
	TimeoutSeconds int            `yaml:"timeout_seconds" validate:"min=0"`
	StartDate      string         `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate        string         `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Actions        []ActionDef    `yaml:"actions" validate:"dive"`
	Schedule       *ScheduleDef   `yaml:"schedule"`
}

type ActionDef struct {
	Name              string         `yaml:"name" validate:"required,max=200"`
	Description       string         `yaml:"description"`
	Type              string         `yaml:"type" validate:"required"`
	Config            map[string]any `yaml:"config"`
	Enabled           *bool          `yaml:"enabled"`
	Order             int            `yaml:"order"`
	ContinueOnFailure bool           `yaml:"continue_on_failure"`
	DelaySeconds      int            `yaml:"delay_seconds" validate:"min=0"`
	MaxRetries        int            `yaml:"max_retries" validate:"min=0"`
	RetryDelaySeconds int            `yaml:"retry_delay_seconds" validate:"min=0"`
}

type ScheduleDef struct {
	Frequency      string `yaml:"frequency" validate:"required,oneof=once hourly daily weekly monthly quarterly yearly custom"`
	StartTime      string `yaml:"start_time" validate:"required"`
	Timezone       string `yaml:"timezone" validate:"omitempty,timezone"`
	CronExpression string `yaml:"cron_expression"`
	StartDate      string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
}
