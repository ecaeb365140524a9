package handler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/kpi"
	"github.com/edvin/automation/internal/model"
)

type mockRuleStore struct {
	mock.Mock
}

func (m *mockRuleStore) GetRule(ctx context.Context, tenantID, ruleID string) (*model.Rule, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Rule), args.Error(1)
}

func (m *mockRuleStore) Toggle(ctx context.Context, tenantID, ruleID string) (*model.Rule, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Rule), args.Error(1)
}

func (m *mockRuleStore) ResetCounter(ctx context.Context, tenantID, ruleID string) error {
	return m.Called(ctx, tenantID, ruleID).Error(0)
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) ShouldTrigger(ctx context.Context, rule *model.Rule) (bool, error) {
	args := m.Called(ctx, rule)
	return args.Bool(0), args.Error(1)
}

type mockLogLister struct {
	mock.Mock
}

func (m *mockLogLister) ListByRule(ctx context.Context, tenantID, ruleID string, limit int, cursor string) ([]model.ExecutionLog, bool, error) {
	args := m.Called(ctx, tenantID, ruleID, limit, cursor)
	logs, _ := args.Get(0).([]model.ExecutionLog)
	return logs, args.Bool(1), args.Error(2)
}

type mockScheduleStore struct {
	mock.Mock
}

func (m *mockScheduleStore) GetByRule(ctx context.Context, tenantID, ruleID string) (*model.Schedule, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *mockScheduleStore) Upsert(ctx context.Context, sc *model.Schedule) error {
	return m.Called(ctx, sc).Error(0)
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) Stats(ctx context.Context, tenantID string, since time.Time) (*core.AutomationStats, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.AutomationStats), args.Error(1)
}

type mockDataPointWriter struct {
	mock.Mock
}

func (m *mockDataPointWriter) Write(ctx context.Context, tenantID string, dp model.KPIDataPoint) (kpi.WriteResult, error) {
	args := m.Called(ctx, tenantID, dp)
	return args.Get(0).(kpi.WriteResult), args.Error(1)
}
