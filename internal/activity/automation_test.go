package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/kpi"
)

type mockEngine struct{ mock.Mock }

func (m *mockEngine) RunConditionalPass(ctx context.Context, tenantID string) (automation.PassResult, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(automation.PassResult), args.Error(1)
}

func (m *mockEngine) RunScheduledPass(ctx context.Context, tenantID string) (automation.PassResult, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(automation.PassResult), args.Error(1)
}

func (m *mockEngine) ExecuteRule(ctx context.Context, tenantID, ruleID string) (automation.ExecutionResult, error) {
	args := m.Called(ctx, tenantID, ruleID)
	return args.Get(0).(automation.ExecutionResult), args.Error(1)
}

type mockPruner struct{ mock.Mock }

func (m *mockPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockRecalculator struct{ mock.Mock }

func (m *mockRecalculator) RecalculateAll(ctx context.Context, tenantID string, date time.Time) (kpi.WriteResult, error) {
	args := m.Called(ctx, tenantID, date)
	return args.Get(0).(kpi.WriteResult), args.Error(1)
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestAutomation() (*Automation, *mockEngine, *mockPruner, *mockRecalculator) {
	engine, logs, kpis := &mockEngine{}, &mockPruner{}, &mockRecalculator{}
	a := NewAutomation(engine, logs, kpis)
	a.now = func() time.Time { return fixedNow }
	return a, engine, logs, kpis
}

// runActivity executes fn inside a test activity environment so the
// activity logger is available.
func runActivity(t *testing.T, fn any, params any) (converter.EncodedValue, error) {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(fn)
	return env.ExecuteActivity(fn, params)
}

// ---------- passes ----------

func TestRunConditionalPass(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	engine.On("RunConditionalPass", mock.Anything, "tenant-1").
		Return(automation.PassResult{Processed: 3, Triggered: 1, Succeeded: 1}, nil)

	val, err := runActivity(t, a.RunConditionalPass, PassParams{TenantID: "tenant-1"})
	require.NoError(t, err)

	var res automation.PassResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Triggered)
	engine.AssertExpectations(t)
}

func TestRunScheduledPass_StoreUnavailable(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	engine.On("RunScheduledPass", mock.Anything, "").
		Return(automation.PassResult{Processed: 2, Errors: 2}, fmt.Errorf("scheduled pass: %w", automation.ErrStoreUnavailable))

	_, err := runActivity(t, a.RunScheduledPass, PassParams{})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.False(t, appErr.NonRetryable())
	assert.Contains(t, err.Error(), "automation store unavailable")
}

func TestRunScheduledPass_HeartbeatsPerRule(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	a.heartbeatEvery = time.Millisecond
	hasProgress := mock.MatchedBy(func(ctx context.Context) bool {
		return automation.ProgressFrom(ctx) != nil
	})
	engine.On("RunScheduledPass", hasProgress, "tenant-1").
		Run(func(args mock.Arguments) {
			progress := automation.ProgressFrom(args.Get(0).(context.Context))
			progress("scheduled rule-1")
			time.Sleep(5 * time.Millisecond)
			progress("scheduled rule-2")
		}).
		Return(automation.PassResult{Processed: 2, Triggered: 2, Succeeded: 2}, nil)

	val, err := runActivity(t, a.RunScheduledPass, PassParams{TenantID: "tenant-1"})
	require.NoError(t, err)

	var res automation.PassResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, 2, res.Triggered)
	engine.AssertExpectations(t)
}

// ---------- ExecuteRule ----------

func TestExecuteRule(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	engine.On("ExecuteRule", mock.Anything, "tenant-1", "rule-1").
		Return(automation.ExecutionResult{RuleID: "rule-1", Executed: true, Clean: true, Total: 2, Ran: 2}, nil)

	res, err := a.ExecuteRule(context.Background(), ExecuteRuleParams{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, 2, res.Ran)
}

func TestExecuteRule_NotFoundIsNonRetryable(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	engine.On("ExecuteRule", mock.Anything, "tenant-1", "missing").
		Return(automation.ExecutionResult{}, &automation.PersistenceError{Op: "get rule", Err: fmt.Errorf("get rule missing: %w", core.ErrNotFound)})

	_, err := a.ExecuteRule(context.Background(), ExecuteRuleParams{TenantID: "tenant-1", RuleID: "missing"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, "RULE_NOT_FOUND", appErr.Type())
}

func TestExecuteRule_StoreErrorIsRetryable(t *testing.T) {
	a, engine, _, _ := newTestAutomation()
	engine.On("ExecuteRule", mock.Anything, "tenant-1", "rule-1").
		Return(automation.ExecutionResult{}, &automation.PersistenceError{Op: "record execution", Err: errors.New("connection reset")})

	_, err := a.ExecuteRule(context.Background(), ExecuteRuleParams{TenantID: "tenant-1", RuleID: "rule-1"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	assert.False(t, errors.As(err, &appErr))
}

// ---------- housekeeping ----------

func TestDeleteOldExecutionLogs(t *testing.T) {
	a, _, logs, _ := newTestAutomation()
	logs.On("DeleteOlderThan", mock.Anything, fixedNow.AddDate(0, 0, -90)).Return(int64(42), nil)

	val, err := runActivity(t, a.DeleteOldExecutionLogs, CleanupParams{RetentionDays: 90})
	require.NoError(t, err)

	var n int64
	require.NoError(t, val.Get(&n))
	assert.Equal(t, int64(42), n)
	logs.AssertExpectations(t)
}

func TestDeleteOldExecutionLogs_InvalidRetention(t *testing.T) {
	a, _, logs, _ := newTestAutomation()

	_, err := a.DeleteOldExecutionLogs(context.Background(), CleanupParams{RetentionDays: 0})
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	logs.AssertNotCalled(t, "DeleteOlderThan", mock.Anything, mock.Anything)
}

func TestRecalculateKPIs_DefaultsToToday(t *testing.T) {
	a, _, _, kpis := newTestAutomation()
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	kpis.On("RecalculateAll", mock.Anything, "", today).
		Return(kpi.WriteResult{DataPoints: 3, Recomputed: []string{"k1", "k2", "k3"}}, nil)

	res, err := a.RecalculateKPIs(context.Background(), RecalculateKPIsParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.DataPoints)
}

func TestRecalculateKPIs_Error(t *testing.T) {
	a, _, _, kpis := newTestAutomation()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	kpis.On("RecalculateAll", mock.Anything, "tenant-1", date).
		Return(kpi.WriteResult{}, errors.New("db down"))

	_, err := a.RecalculateKPIs(context.Background(), RecalculateKPIsParams{TenantID: "tenant-1", Date: date})
	assert.ErrorContains(t, err, "db down")
}
