package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/automation/internal/activity"
	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/kpi"
)

// TaskQueue is the queue the automation worker polls.
const TaskQueue = "automation"

// passActivityCtx bounds one processing pass. The pass heartbeats per rule
// and on a ticker, so a dead worker is noticed long before StartToClose. A
// pass that fails as a whole (the store is unreachable for every rule) is
// retried a few times before the workflow run fails and the cron schedule
// tries again on its next tick.
func passActivityCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
		},
	})
}

// ProcessAutomationRulesWorkflow runs the conditional pass of the
// processing cycle.
func ProcessAutomationRulesWorkflow(ctx workflow.Context, params activity.PassParams) (automation.PassResult, error) {
	var res automation.PassResult
	err := workflow.ExecuteActivity(passActivityCtx(ctx), "RunConditionalPass", params).Get(ctx, &res)
	if err != nil {
		return res, fmt.Errorf("run conditional pass: %w", err)
	}
	workflow.GetLogger(ctx).Info("conditional pass done",
		"processed", res.Processed, "triggered", res.Triggered, "errors", res.Errors)
	return res, nil
}

// ProcessScheduledRulesWorkflow runs the scheduled pass of the processing
// cycle.
func ProcessScheduledRulesWorkflow(ctx workflow.Context, params activity.PassParams) (automation.PassResult, error) {
	var res automation.PassResult
	err := workflow.ExecuteActivity(passActivityCtx(ctx), "RunScheduledPass", params).Get(ctx, &res)
	if err != nil {
		return res, fmt.Errorf("run scheduled pass: %w", err)
	}
	workflow.GetLogger(ctx).Info("scheduled pass done",
		"processed", res.Processed, "triggered", res.Triggered, "errors", res.Errors)
	return res, nil
}

// ExecuteRuleWorkflow runs one rule on operator request.
func ExecuteRuleWorkflow(ctx workflow.Context, params activity.ExecuteRuleParams) (automation.ExecutionResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
			InitialInterval: 5 * time.Second,
		},
	})

	var res automation.ExecutionResult
	err := workflow.ExecuteActivity(ctx, "ExecuteRule", params).Get(ctx, &res)
	if err != nil {
		return res, fmt.Errorf("execute rule %s: %w", params.RuleID, err)
	}
	return res, nil
}

// CleanupExecutionLogsWorkflow deletes execution logs past the retention.
func CleanupExecutionLogsWorkflow(ctx workflow.Context, retentionDays int) (int64, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var deleted int64
	err := workflow.ExecuteActivity(ctx, "DeleteOldExecutionLogs", activity.CleanupParams{
		RetentionDays: retentionDays,
	}).Get(ctx, &deleted)
	if err != nil {
		return 0, fmt.Errorf("delete old execution logs: %w", err)
	}
	return deleted, nil
}

// RecalculateKPIsWorkflow recomputes calculated KPIs for the workflow's
// current UTC day.
func RecalculateKPIsWorkflow(ctx workflow.Context, tenantID string) (kpi.WriteResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	now := workflow.Now(ctx).UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var res kpi.WriteResult
	err := workflow.ExecuteActivity(ctx, "RecalculateKPIs", activity.RecalculateKPIsParams{
		TenantID: tenantID,
		Date:     day,
	}).Get(ctx, &res)
	if err != nil {
		return res, fmt.Errorf("recalculate kpis: %w", err)
	}
	return res, nil
}
