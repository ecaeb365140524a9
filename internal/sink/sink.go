// Package sink performs the side effects of automation actions against the
// database, SMTP, outbound webhooks and report storage.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/kpi"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

var ErrProjectNotFound = errors.New("project not found in tenant")

// TaskStore is the task access the task actions need.
type TaskStore interface {
	ProjectExists(ctx context.Context, tenantID, projectID string) (bool, error)
	Create(ctx context.Context, t *model.Task) error
	UpdateStatus(ctx context.Context, tenantID, taskID, status string) error
	Assign(ctx context.Context, tenantID, taskID, userID string) error
}

// DataPointWriter writes a KPI data point through the KPI pipeline.
type DataPointWriter interface {
	Write(ctx context.Context, tenantID string, dp model.KPIDataPoint) (kpi.WriteResult, error)
}

// Mailer delivers plain-text email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Deps holds the collaborators of a Sink.
type Deps struct {
	Tasks      TaskStore
	Notifier   kpi.Notifier
	DataPoints DataPointWriter
	Mailer     Mailer
	Webhooks   *WebhookClient
	Reports    *Reports
	Scripts    *ScriptRegistry
	Clock      automation.Clock
	Logger     zerolog.Logger
}

// Sink implements automation.ActionSink.
type Sink struct {
	tasks      TaskStore
	notifier   kpi.Notifier
	dataPoints DataPointWriter
	mailer     Mailer
	webhooks   *WebhookClient
	reports    *Reports
	scripts    *ScriptRegistry
	clock      automation.Clock
	logger     zerolog.Logger
}

var _ automation.ActionSink = (*Sink)(nil)

func New(d Deps) *Sink {
	if d.Clock == nil {
		d.Clock = automation.SystemClock{}
	}
	if d.Scripts == nil {
		d.Scripts = NewScriptRegistry()
	}
	return &Sink{
		tasks:      d.Tasks,
		notifier:   d.Notifier,
		dataPoints: d.DataPoints,
		mailer:     d.Mailer,
		webhooks:   d.Webhooks,
		reports:    d.Reports,
		scripts:    d.Scripts,
		clock:      d.Clock,
		logger:     d.Logger.With().Str("component", "action-sink").Logger(),
	}
}

func (s *Sink) SendEmail(ctx context.Context, inv automation.Invocation, cfg automation.SendEmailConfig) error {
	if s.mailer == nil {
		return errors.New("email delivery is not configured")
	}
	if err := s.mailer.Send(ctx, cfg.Recipients, cfg.Subject, cfg.Message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.logger.Info().Str("rule", inv.RuleID).Int("recipients", len(cfg.Recipients)).Msg("email sent")
	return nil
}

func (s *Sink) SendNotification(ctx context.Context, inv automation.Invocation, cfg automation.SendNotificationConfig) error {
	now := s.clock.Now()
	notes := make([]model.Notification, 0, len(cfg.UserIDs))
	for _, userID := range cfg.UserIDs {
		notes = append(notes, model.Notification{
			ID:          platform.NewID(),
			TenantID:    inv.TenantID,
			UserID:      userID,
			Type:        cfg.Type,
			Title:       cfg.Title,
			Message:     cfg.Message,
			ActionURL:   cfg.ActionURL,
			ActionLabel: cfg.ActionLabel,
			CreatedAt:   now,
		})
	}
	if err := s.notifier.Notify(ctx, notes); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// CreateTask fails unless the project exists in the rule's tenant.
func (s *Sink) CreateTask(ctx context.Context, inv automation.Invocation, cfg automation.CreateTaskConfig) error {
	ok, err := s.tasks.ProjectExists(ctx, inv.TenantID, cfg.ProjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("create task: %w: %s", ErrProjectNotFound, cfg.ProjectID)
	}
	now := s.clock.Now()
	return s.tasks.Create(ctx, &model.Task{
		ID:           platform.NewID(),
		ProjectID:    cfg.ProjectID,
		TenantID:     inv.TenantID,
		Title:        cfg.Title,
		Description:  cfg.Description,
		Status:       cfg.Status,
		Priority:     cfg.Priority,
		AssignedToID: cfg.AssignedToID,
		CreatedBy:    inv.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *Sink) UpdateTask(ctx context.Context, inv automation.Invocation, cfg automation.UpdateTaskConfig) error {
	return s.tasks.UpdateStatus(ctx, inv.TenantID, cfg.TaskID, cfg.Status)
}

func (s *Sink) AssignUser(ctx context.Context, inv automation.Invocation, cfg automation.AssignUserConfig) error {
	return s.tasks.Assign(ctx, inv.TenantID, cfg.TaskID, cfg.UserID)
}

func (s *Sink) CallWebhook(ctx context.Context, inv automation.Invocation, cfg automation.WebhookConfig) error {
	if s.webhooks == nil {
		return errors.New("webhook client is not configured")
	}
	return s.webhooks.Call(ctx, cfg)
}

// CreateKPIDataPoint writes the value through the KPI pipeline so threshold
// alerts and dependent KPIs follow.
func (s *Sink) CreateKPIDataPoint(ctx context.Context, inv automation.Invocation, cfg automation.KPIDataPointConfig) error {
	now := s.clock.Now()
	res, err := s.dataPoints.Write(ctx, inv.TenantID, model.KPIDataPoint{
		KPIID:     cfg.KPIID,
		Date:      cfg.Day(now),
		Value:     *cfg.Value,
		Source:    model.KPISourceAutomation,
		Notes:     "Created by automation rule: " + inv.RuleName,
		CreatedAt: now,
	})
	if err != nil {
		return err
	}
	s.logger.Debug().
		Str("kpi", cfg.KPIID).
		Int("alerts_created", res.AlertsCreated).
		Strs("recomputed", res.Recomputed).
		Msg("kpi data point written")
	return nil
}

func (s *Sink) GenerateReport(ctx context.Context, inv automation.Invocation, cfg automation.GenerateReportConfig) error {
	if s.reports == nil {
		return errors.New("report storage is not configured")
	}
	key, err := s.reports.Generate(ctx, inv.TenantID, cfg.ReportType, cfg.PeriodDays, s.clock.Now())
	if err != nil {
		return err
	}
	s.logger.Info().Str("rule", inv.RuleID).Str("key", key).Msg("report stored")
	return nil
}

func (s *Sink) RunScript(ctx context.Context, inv automation.Invocation, cfg automation.CustomScriptConfig) error {
	return s.scripts.Run(ctx, cfg.Script, inv, cfg.Params)
}
