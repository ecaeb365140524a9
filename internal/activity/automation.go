package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/kpi"
)

// Engine is the processing cycle the activities drive.
type Engine interface {
	RunConditionalPass(ctx context.Context, tenantID string) (automation.PassResult, error)
	RunScheduledPass(ctx context.Context, tenantID string) (automation.PassResult, error)
	ExecuteRule(ctx context.Context, tenantID, ruleID string) (automation.ExecutionResult, error)
}

// LogPruner deletes execution logs older than a cutoff.
type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// KPIRecalculator recomputes calculated KPIs for a day.
type KPIRecalculator interface {
	RecalculateAll(ctx context.Context, tenantID string, date time.Time) (kpi.WriteResult, error)
}

// passHeartbeatInterval must stay well below the pass activities'
// HeartbeatTimeout.
const passHeartbeatInterval = 20 * time.Second

// Automation contains the activities of the automation worker.
type Automation struct {
	engine         Engine
	logs           LogPruner
	kpis           KPIRecalculator
	now            func() time.Time
	heartbeatEvery time.Duration
}

func NewAutomation(engine Engine, logs LogPruner, kpis KPIRecalculator) *Automation {
	return &Automation{
		engine:         engine,
		logs:           logs,
		kpis:           kpis,
		now:            func() time.Time { return time.Now().UTC() },
		heartbeatEvery: passHeartbeatInterval,
	}
}

// withPassHeartbeat heartbeats once per rule the pass reports, and on a
// ticker so a single long rule does not look stuck. The returned stop
// function must be called when the pass returns.
func (a *Automation) withPassHeartbeat(ctx context.Context) (context.Context, func()) {
	var (
		mu     sync.Mutex
		detail = "pass started"
	)
	beat := func(d string) {
		mu.Lock()
		defer mu.Unlock()
		if d != "" {
			detail = d
		}
		activity.RecordHeartbeat(ctx, detail)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(a.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat("")
			}
		}
	}()
	return automation.WithProgress(ctx, beat), func() { close(done) }
}

// RunConditionalPass evaluates the enabled rules and executes the ones whose
// trigger holds. Per-rule failures are absorbed by the pass; an error here
// means the pass as a whole could not run and is worth retrying.
func (a *Automation) RunConditionalPass(ctx context.Context, params PassParams) (automation.PassResult, error) {
	ctx, stop := a.withPassHeartbeat(ctx)
	defer stop()
	res, err := a.engine.RunConditionalPass(ctx, params.TenantID)
	if err != nil {
		activity.GetLogger(ctx).Warn("conditional pass failed", "tenant", params.TenantID, "error", err)
		return res, err
	}
	return res, nil
}

// RunScheduledPass executes the rules of due schedules and advances them.
func (a *Automation) RunScheduledPass(ctx context.Context, params PassParams) (automation.PassResult, error) {
	ctx, stop := a.withPassHeartbeat(ctx)
	defer stop()
	res, err := a.engine.RunScheduledPass(ctx, params.TenantID)
	if err != nil {
		activity.GetLogger(ctx).Warn("scheduled pass failed", "tenant", params.TenantID, "error", err)
		return res, err
	}
	return res, nil
}

// ExecuteRule runs one rule on demand. A rule that does not exist in the
// tenant fails without retry.
func (a *Automation) ExecuteRule(ctx context.Context, params ExecuteRuleParams) (automation.ExecutionResult, error) {
	res, err := a.engine.ExecuteRule(ctx, params.TenantID, params.RuleID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return res, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("rule %s not found in tenant %s", params.RuleID, params.TenantID), "RULE_NOT_FOUND", err)
		}
		return res, fmt.Errorf("execute rule %s: %w", params.RuleID, err)
	}
	return res, nil
}

// DeleteOldExecutionLogs removes execution logs older than the retention.
func (a *Automation) DeleteOldExecutionLogs(ctx context.Context, params CleanupParams) (int64, error) {
	if params.RetentionDays < 1 {
		return 0, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("retention must be at least one day, got %d", params.RetentionDays), "INVALID_RETENTION", nil)
	}
	cutoff := a.now().AddDate(0, 0, -params.RetentionDays)
	n, err := a.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete execution logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	activity.GetLogger(ctx).Info("execution logs pruned", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// RecalculateKPIs recomputes the calculated KPIs of a tenant (all tenants
// when empty) for the given day.
func (a *Automation) RecalculateKPIs(ctx context.Context, params RecalculateKPIsParams) (kpi.WriteResult, error) {
	date := params.Date
	if date.IsZero() {
		now := a.now()
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	res, err := a.kpis.RecalculateAll(ctx, params.TenantID, date)
	if err != nil {
		return res, fmt.Errorf("recalculate kpis: %w", err)
	}
	return res, nil
}
