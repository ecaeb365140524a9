package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/metrics"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// ExecutionResult summarizes one rule invocation.
type ExecutionResult struct {
	RuleID   string         `json:"rule_id"`
	Executed bool           `json:"executed"`
	Clean    bool           `json:"clean"`
	Total    int            `json:"total"`
	Ran      int            `json:"executed_actions"`
	Failed   int            `json:"failed_actions"`
	Skipped  int            `json:"skipped_actions"`
	TimedOut bool           `json:"timed_out"`
	Actions  []ActionResult `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// Coordinator drives a rule's ordered actions and records the outcome.
type Coordinator struct {
	rules    RuleStore
	actions  ActionStore
	executor *Executor
	clock    Clock
	logger   zerolog.Logger
}

func NewCoordinator(rules RuleStore, actions ActionStore, executor *Executor, clock Clock, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		rules:    rules,
		actions:  actions,
		executor: executor,
		clock:    clock,
		logger:   logger.With().Str("component", "rule-coordinator").Logger(),
	}
}

// Execute runs the rule if it may execute now. A rule that may not execute
// returns Executed=false and leaves no trace. Otherwise the counter
// increment, last_triggered and all log rows are written in one
// RecordExecution call, whatever the actions did, even when ctx is done by
// then. Only persistence failures are returned as errors.
func (c *Coordinator) Execute(ctx context.Context, rule *model.Rule, trigger map[string]any) (ExecutionResult, error) {
	start := c.clock.Now()
	res := ExecutionResult{RuleID: rule.ID}
	if !CanExecute(rule, start) {
		return res, nil
	}

	actions, err := c.actions.ListActions(ctx, rule.TenantID, rule.ID)
	if err != nil {
		return res, persistenceErr("list actions", err)
	}
	enabled := actions[:0:0]
	for _, a := range actions {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	model.SortActions(enabled)
	res.Executed = true
	res.Total = len(enabled)

	log := c.logger.With().Str("tenant", rule.TenantID).Str("rule", rule.ID).Logger()
	var triggerData json.RawMessage
	if len(trigger) > 0 {
		triggerData = marshalData(trigger)
	}

	budget := rule.Timeout()
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	inv := Invocation{
		TenantID:  rule.TenantID,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		CreatedBy: rule.CreatedBy,
	}

	var logs []model.ExecutionLog
	for i := range enabled {
		action := &enabled[i]

		if c.clock.Now().Sub(start) >= budget || runCtx.Err() != nil {
			res.TimedOut = true
			logs = c.skipRemaining(rule, enabled[i:], &res, logs, triggerData)
			log.Warn().Dur("budget", budget).Int("skipped", res.Skipped).Msg("rule timeout exceeded, skipping remaining actions")
			break
		}

		ar := c.executor.Execute(runCtx, inv, action)
		res.Actions = append(res.Actions, ar)
		res.Ran++
		if ar.Success {
			continue
		}
		res.Failed++
		if ar.Unexpected != nil {
			logs = append(logs, c.actionLog(rule, action, model.LogStatusError,
				fmt.Sprintf("Unexpected error in action %s: %v", action.Name, ar.Unexpected),
				ar.Duration.Milliseconds(), triggerData))
		}
		if errors.Is(ar.Err, context.DeadlineExceeded) {
			res.TimedOut = true
			logs = c.skipRemaining(rule, enabled[i+1:], &res, logs, triggerData)
			log.Warn().Dur("budget", budget).Int("skipped", res.Skipped).Msg("rule timeout exceeded during action")
			break
		}
		if !action.ContinueOnFailure {
			log.Info().Str("action", action.ID).Msg("action failed, stopping rule")
			break
		}
	}

	now := c.clock.Now()
	res.Duration = now.Sub(start)
	res.Clean = res.Failed == 0 && !res.TimedOut

	status := model.LogStatusSuccess
	if !res.Clean {
		status = model.LogStatusPartial
	}
	msg := fmt.Sprintf("Executed %d actions, %d failed", res.Ran, res.Failed)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", res.Skipped)
	}
	ruleLog := model.ExecutionLog{
		ID:              platform.NewID(),
		TenantID:        rule.TenantID,
		RuleID:          rule.ID,
		Status:          status,
		Message:         msg,
		ExecutionTimeMS: res.Duration.Milliseconds(),
		TriggerData:     triggerData,
		ResultData:      marshalData(res),
		CreatedAt:       now,
	}
	logs = append([]model.ExecutionLog{ruleLog}, logs...)

	rec := model.ExecutionRecord{
		TenantID:    rule.TenantID,
		RuleID:      rule.ID,
		TriggeredAt: now,
		Logs:        logs,
	}
	recCtx, recCancel := detached(ctx)
	err = c.rules.RecordExecution(recCtx, rec)
	recCancel()
	if err != nil {
		return res, persistenceErr("record execution", err)
	}
	rule.ExecutionCount++
	rule.LastTriggered = &now

	outcome := "success"
	if !res.Clean {
		outcome = "partial"
	}
	metrics.RulesExecuted.WithLabelValues(outcome).Inc()
	metrics.RuleDuration.Observe(res.Duration.Seconds())

	log.Info().
		Int("executed", res.Ran).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration).
		Msg("rule executed")
	return res, nil
}

func (c *Coordinator) skipRemaining(rule *model.Rule, rest []model.Action, res *ExecutionResult, logs []model.ExecutionLog, trigger json.RawMessage) []model.ExecutionLog {
	for i := range rest {
		res.Skipped++
		logs = append(logs, c.actionLog(rule, &rest[i], model.LogStatusSkipped, ErrTimeoutExceeded.Error(), 0, trigger))
	}
	return logs
}

func (c *Coordinator) actionLog(rule *model.Rule, action *model.Action, status, msg string, ms int64, trigger json.RawMessage) model.ExecutionLog {
	id := action.ID
	return model.ExecutionLog{
		ID:              platform.NewID(),
		TenantID:        rule.TenantID,
		RuleID:          rule.ID,
		ActionID:        &id,
		Status:          status,
		Message:         msg,
		ExecutionTimeMS: ms,
		TriggerData:     trigger,
		CreatedAt:       c.clock.Now(),
	}
}

func marshalData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
