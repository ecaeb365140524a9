package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/automation/internal/activity"
	"github.com/edvin/automation/internal/config"
	"github.com/edvin/automation/internal/workflow"
)

type cronSchedule struct {
	id       string
	cron     string
	workflow any
	args     []any
}

// cronSchedules lists the periodic workflows. Both passes of the
// processing cycle run on the cycle cron across all tenants.
func cronSchedules(cfg *config.Config) []cronSchedule {
	allTenants := activity.PassParams{}
	return []cronSchedule{
		{
			id:       "automation-conditional-pass",
			cron:     cfg.CycleCron,
			workflow: workflow.ProcessAutomationRulesWorkflow,
			args:     []any{allTenants},
		},
		{
			id:       "automation-scheduled-pass",
			cron:     cfg.CycleCron,
			workflow: workflow.ProcessScheduledRulesWorkflow,
			args:     []any{allTenants},
		},
		{
			id:       "kpi-recalculation-cron",
			cron:     cfg.KPIRecalcCron,
			workflow: workflow.RecalculateKPIsWorkflow,
			args:     []any{""},
		},
		{
			id:       "execution-log-retention-cron",
			cron:     cfg.LogCleanupCron,
			workflow: workflow.CleanupExecutionLogsWorkflow,
			args:     []any{cfg.LogRetentionDays},
		},
	}
}

// registerCronSchedules creates the schedules. Schedules that already
// exist are left alone so that re-deploys do not fail.
func registerCronSchedules(ctx context.Context, sc temporalclient.ScheduleClient, schedules []cronSchedule, logger zerolog.Logger) error {
	for _, s := range schedules {
		_, err := sc.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			// A cycle still running when the next tick fires makes that tick a no-op.
			Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: workflow.TaskQueue,
			},
		})
		switch {
		case errors.Is(err, temporal.ErrScheduleAlreadyRunning):
			logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
		case err != nil:
			return fmt.Errorf("create schedule %s: %w", s.id, err)
		default:
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		}
	}
	return nil
}
