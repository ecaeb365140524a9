package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/activity"
	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/config"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/kpi"
	"github.com/edvin/automation/internal/sink"
)

// reportSource combines the stores the report generator reads.
type reportSource struct {
	*core.DashboardService
	*core.KPIService
}

// newAutomationActivities builds the processing engine over the core
// stores and wraps it in the worker's activities.
func newAutomationActivities(db core.DB, cfg *config.Config, logger zerolog.Logger) *activity.Automation {
	services := core.NewServices(db)
	pipeline := kpi.NewPipeline(services.KPI, services.Notification, logger)

	deps := sink.Deps{
		Tasks:      services.Task,
		Notifier:   services.Notification,
		DataPoints: pipeline,
		Webhooks:   sink.NewWebhookClient(cfg.WebhookTimeout),
		Scripts:    newScriptRegistry(pipeline),
		Logger:     logger,
	}
	if cfg.SMTPAddr != "" {
		deps.Mailer = sink.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		logger.Warn().Msg("SMTP_ADDR not set, send_email actions will fail")
	}
	if cfg.ReportS3Bucket != "" {
		store := sink.NewS3ReportStore(sink.S3Config{
			Endpoint:  cfg.ReportS3Endpoint,
			Region:    cfg.ReportS3Region,
			Bucket:    cfg.ReportS3Bucket,
			AccessKey: cfg.ReportS3AccessKey,
			SecretKey: cfg.ReportS3SecretKey,
		})
		deps.Reports = sink.NewReports(reportSource{services.Dashboard, services.KPI}, store)
	} else {
		logger.Warn().Msg("REPORT_S3_BUCKET not set, generate_report actions will fail")
	}

	processor := automation.NewProcessor(automation.Deps{
		Rules:       services.Rule,
		Actions:     services.Action,
		Schedules:   services.Schedule,
		Logs:        services.ExecutionLog,
		KPIs:        services.KPI,
		Tasks:       services.Task,
		Sink:        sink.New(deps),
		Logger:      logger,
		Concurrency: cfg.CycleConcurrency,
	})
	return activity.NewAutomation(processor, services.ExecutionLog, pipeline)
}

// newScriptRegistry registers the hooks custom_script actions may call.
func newScriptRegistry(pipeline *kpi.Pipeline) *sink.ScriptRegistry {
	scripts := sink.NewScriptRegistry()
	scripts.Register("recalculate_kpis", func(ctx context.Context, inv automation.Invocation, _ map[string]any) error {
		_, err := pipeline.RecalculateAll(ctx, inv.TenantID, time.Now().UTC())
		return err
	})
	return scripts
}
