package core

type Services struct {
	Rule         *RuleService
	Action       *ActionService
	Schedule     *ScheduleService
	ExecutionLog *ExecutionLogService
	KPI          *KPIService
	Task         *TaskService
	Notification *NotificationService
	APIKey       *APIKeyService
	Dashboard    *DashboardService
}

func NewServices(db DB) *Services {
	return &Services{
		Rule:         NewRuleService(db),
		Action:       NewActionService(db),
		Schedule:     NewScheduleService(db),
		ExecutionLog: NewExecutionLogService(db),
		KPI:          NewKPIService(db),
		Task:         NewTaskService(db),
		Notification: NewNotificationService(db),
		APIKey:       NewAPIKeyService(db),
		Dashboard:    NewDashboardService(db),
	}
}
