package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/automation/internal/activity"
	"github.com/edvin/automation/internal/api/request"
	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// executeRuleWorkflow and automationTaskQueue name the worker's workflow
// and queue; the API does not import the worker packages.
const (
	executeRuleWorkflow = "ExecuteRuleWorkflow"
	automationTaskQueue = "automation"
)

// RuleStore is the rule access the rule endpoints need.
type RuleStore interface {
	GetRule(ctx context.Context, tenantID, ruleID string) (*model.Rule, error)
	Toggle(ctx context.Context, tenantID, ruleID string) (*model.Rule, error)
	ResetCounter(ctx context.Context, tenantID, ruleID string) error
}

// TriggerChecker evaluates a rule's trigger without executing it.
type TriggerChecker interface {
	ShouldTrigger(ctx context.Context, rule *model.Rule) (bool, error)
}

// LogLister pages through a rule's execution logs.
type LogLister interface {
	ListByRule(ctx context.Context, tenantID, ruleID string, limit int, cursor string) ([]model.ExecutionLog, bool, error)
}

type Rule struct {
	rules   RuleStore
	trigger TriggerChecker
	logs    LogLister
	tc      temporalclient.Client
	now     func() time.Time
}

func NewRule(rules RuleStore, trigger TriggerChecker, logs LogLister, tc temporalclient.Client) *Rule {
	return &Rule{
		rules:   rules,
		trigger: trigger,
		logs:    logs,
		tc:      tc,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Toggle flips is_enabled and returns the rule.
func (h *Rule) Toggle(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	rule, err := h.rules.Toggle(r.Context(), tenantID, ruleID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rule)
}

// Execute starts a manual run of the rule on the worker and returns 202.
// The trigger is not evaluated; the rule's execution limits still apply.
func (h *Rule) Execute(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	if _, err := h.rules.GetRule(r.Context(), tenantID, ruleID); err != nil {
		writeStoreError(w, r, err)
		return
	}

	run, err := h.tc.ExecuteWorkflow(r.Context(), temporalclient.StartWorkflowOptions{
		ID:        platform.WorkflowID("execute-rule", ruleID),
		TaskQueue: automationTaskQueue,
	}, executeRuleWorkflow, activity.ExecuteRuleParams{
		TenantID: tenantID,
		RuleID:   ruleID,
	})
	if err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, fmt.Sprintf("start rule execution: %v", err))
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]string{
		"rule_id":     ruleID,
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
	})
}

// Reset zeroes the execution counter and returns the rule.
func (h *Rule) Reset(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	if err := h.rules.ResetCounter(r.Context(), tenantID, ruleID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	rule, err := h.rules.GetRule(r.Context(), tenantID, ruleID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rule)
}

// EvaluateResult is the dry-run answer for a rule.
type EvaluateResult struct {
	RuleID        string `json:"rule_id"`
	CanExecute    bool   `json:"can_execute"`
	ShouldTrigger bool   `json:"should_trigger"`
}

// Evaluate reports whether the rule could run and whether its trigger
// holds right now, without executing anything.
func (h *Rule) Evaluate(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	rule, err := h.rules.GetRule(r.Context(), tenantID, ruleID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	should, err := h.trigger.ShouldTrigger(r.Context(), rule)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, EvaluateResult{
		RuleID:        rule.ID,
		CanExecute:    automation.CanExecute(rule, h.now()),
		ShouldTrigger: should,
	})
}

// Logs lists the rule's execution logs, newest first.
func (h *Rule) Logs(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	page, err := request.ParsePagination(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, hasMore, err := h.logs.ListByRule(r.Context(), tenantID, ruleID, page.Limit, page.Cursor)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	var next string
	if hasMore && len(logs) > 0 {
		next = logs[len(logs)-1].ID
	}
	response.WritePaginated(w, logs, next, hasMore)
}
