package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/automation/internal/model"
)

// Invocation identifies the rule and action on whose behalf a sink call is
// made. Sinks scope every read and write to TenantID.
type Invocation struct {
	TenantID  string
	RuleID    string
	RuleName  string
	CreatedBy string
	ActionID  string
}

// ActionSink performs the side effects of actions. A nil error means the
// effect happened.
type ActionSink interface {
	SendEmail(ctx context.Context, inv Invocation, cfg SendEmailConfig) error
	SendNotification(ctx context.Context, inv Invocation, cfg SendNotificationConfig) error
	CreateTask(ctx context.Context, inv Invocation, cfg CreateTaskConfig) error
	UpdateTask(ctx context.Context, inv Invocation, cfg UpdateTaskConfig) error
	CallWebhook(ctx context.Context, inv Invocation, cfg WebhookConfig) error
	CreateKPIDataPoint(ctx context.Context, inv Invocation, cfg KPIDataPointConfig) error
	GenerateReport(ctx context.Context, inv Invocation, cfg GenerateReportConfig) error
	AssignUser(ctx context.Context, inv Invocation, cfg AssignUserConfig) error
	RunScript(ctx context.Context, inv Invocation, cfg CustomScriptConfig) error
}

// ActionConfig is the typed configuration of one action type.
type ActionConfig interface {
	ActionType() model.ActionType
	dispatch(ctx context.Context, sink ActionSink, inv Invocation) error
}

type SendEmailConfig struct {
	Recipients []string `json:"recipients" validate:"required,min=1,dive,email"`
	Subject    string   `json:"subject" validate:"required"`
	Message    string   `json:"message" validate:"required"`
}

func (SendEmailConfig) ActionType() model.ActionType { return model.ActionSendEmail }

func (c SendEmailConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.SendEmail(ctx, inv, c)
}

type SendNotificationConfig struct {
	UserIDs     []string `json:"user_ids" validate:"required,min=1"`
	Title       string   `json:"title" validate:"required"`
	Message     string   `json:"message" validate:"required"`
	Type        string   `json:"type"`
	ActionURL   string   `json:"action_url"`
	ActionLabel string   `json:"action_label"`
}

func (SendNotificationConfig) ActionType() model.ActionType { return model.ActionSendNotification }

func (c SendNotificationConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.SendNotification(ctx, inv, c)
}

type CreateTaskConfig struct {
	ProjectID    string  `json:"project_id" validate:"required"`
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description"`
	AssignedToID *string `json:"assigned_to_id"`
	Priority     string  `json:"priority" validate:"oneof=low medium high urgent"`
	Status       string  `json:"status" validate:"required"`
}

func (CreateTaskConfig) ActionType() model.ActionType { return model.ActionCreateTask }

func (c CreateTaskConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.CreateTask(ctx, inv, c)
}

type UpdateTaskConfig struct {
	TaskID string `json:"task_id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

func (UpdateTaskConfig) ActionType() model.ActionType { return model.ActionUpdateTask }

func (c UpdateTaskConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.UpdateTask(ctx, inv, c)
}

// WebhookConfig describes an outbound HTTP call. Data is sent as a JSON body
// for POST and as query parameters for GET.
type WebhookConfig struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"oneof=GET POST"`
	Headers map[string]string `json:"headers"`
	Data    map[string]any    `json:"data"`
}

func (WebhookConfig) ActionType() model.ActionType { return model.ActionWebhookCall }

func (c *WebhookConfig) normalize() { c.Method = strings.ToUpper(c.Method) }

func (c WebhookConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.CallWebhook(ctx, inv, c)
}

// KPIDataPointConfig writes a value for a KPI. An empty Date means today.
type KPIDataPointConfig struct {
	KPIID string   `json:"kpi_id" validate:"required"`
	Value *float64 `json:"value" validate:"required"`
	Date  string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (KPIDataPointConfig) ActionType() model.ActionType { return model.ActionCreateKPIDataPoint }

func (c KPIDataPointConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.CreateKPIDataPoint(ctx, inv, c)
}

// Day resolves the data point date, falling back to now's UTC date.
func (c KPIDataPointConfig) Day(now time.Time) time.Time {
	if c.Date != "" {
		if d, err := time.Parse(time.DateOnly, c.Date); err == nil {
			return d
		}
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

type GenerateReportConfig struct {
	ReportType string `json:"report_type" validate:"required,oneof=automation_summary kpi_alerts"`
	PeriodDays int    `json:"period_days" validate:"min=1,max=366"`
}

func (GenerateReportConfig) ActionType() model.ActionType { return model.ActionGenerateReport }

func (c GenerateReportConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.GenerateReport(ctx, inv, c)
}

type AssignUserConfig struct {
	TaskID string `json:"task_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

func (AssignUserConfig) ActionType() model.ActionType { return model.ActionAssignUser }

func (c AssignUserConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.AssignUser(ctx, inv, c)
}

type CustomScriptConfig struct {
	Script string         `json:"script" validate:"required"`
	Params map[string]any `json:"params"`
}

func (CustomScriptConfig) ActionType() model.ActionType { return model.ActionCustomScript }

func (c CustomScriptConfig) dispatch(ctx context.Context, sink ActionSink, inv Invocation) error {
	return sink.RunScript(ctx, inv, c)
}

type normalizer interface {
	normalize()
}

// ParseAction decodes and validates raw action configuration. Defaults are
// preset on the struct so that absent keys keep them.
func ParseAction(t model.ActionType, raw json.RawMessage) (ActionConfig, error) {
	switch t {
	case model.ActionSendEmail:
		return parseInto(raw, &SendEmailConfig{})
	case model.ActionSendNotification:
		return parseInto(raw, &SendNotificationConfig{Type: "info"})
	case model.ActionCreateTask:
		return parseInto(raw, &CreateTaskConfig{Priority: "medium", Status: model.TaskStatusTodo})
	case model.ActionUpdateTask:
		return parseInto(raw, &UpdateTaskConfig{})
	case model.ActionWebhookCall:
		return parseInto(raw, &WebhookConfig{Method: "POST"})
	case model.ActionCreateKPIDataPoint:
		return parseInto(raw, &KPIDataPointConfig{})
	case model.ActionGenerateReport:
		return parseInto(raw, &GenerateReportConfig{PeriodDays: 30})
	case model.ActionAssignUser:
		return parseInto(raw, &AssignUserConfig{})
	case model.ActionCustomScript:
		return parseInto(raw, &CustomScriptConfig{})
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidConfig, t)
	}
}

func parseInto[T ActionConfig](raw json.RawMessage, cfg *T) (ActionConfig, error) {
	if err := decodeConfig(raw, cfg); err != nil {
		return nil, err
	}
	return *cfg, nil
}
