package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/automation/internal/model"
)

func actionRow(a model.Action) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = a.ID
		*(dest[1].(*string)) = a.RuleID
		*(dest[2].(*string)) = a.Name
		*(dest[3].(*string)) = a.Description
		*(dest[4].(*model.ActionType)) = a.Type
		*(dest[5].(*json.RawMessage)) = a.Config
		*(dest[6].(*bool)) = a.Enabled
		*(dest[7].(*int)) = a.Order
		*(dest[8].(*bool)) = a.ContinueOnFailure
		*(dest[9].(*int)) = a.DelaySeconds
		*(dest[10].(*int)) = a.MaxRetries
		*(dest[11].(*int)) = a.RetryDelaySeconds
		*(dest[12].(*time.Time)) = a.CreatedAt
		*(dest[13].(*time.Time)) = a.UpdatedAt
		return nil
	}
}

func TestActionService_ListActions(t *testing.T) {
	db := &mockDB{}
	svc := NewActionService(db)
	ctx := context.Background()

	first := model.Action{ID: "a1", RuleID: "rule-1", Name: "notify", Type: model.ActionSendNotification, Enabled: true, Order: 1}
	second := model.Action{ID: "a2", RuleID: "rule-1", Name: "hook", Type: model.ActionWebhookCall, Order: 2, MaxRetries: 3, RetryDelaySeconds: 5}

	db.On("Query", ctx, sqlContaining("ORDER BY a.execution_order, a.name"), []any{"tenant-1", "rule-1"}).
		Return(newMockRows(actionRow(first), actionRow(second)), nil)

	actions, err := svc.ListActions(ctx, "tenant-1", "rule-1")
	require.NoError(t, err)
	assert.Equal(t, []model.Action{first, second}, actions)
}

func TestActionService_ListActions_QueryError(t *testing.T) {
	db := &mockDB{}
	svc := NewActionService(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("db error"))

	_, err := svc.ListActions(ctx, "tenant-1", "rule-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list actions for rule rule-1")
}

func TestActionService_Create(t *testing.T) {
	db := &mockDB{}
	svc := NewActionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlContaining("INSERT INTO automation_actions"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, svc.Create(ctx, &model.Action{ID: "a1", RuleID: "rule-1"}))
	db.AssertExpectations(t)
}

func TestActionService_DeleteByRule(t *testing.T) {
	db := &mockDB{}
	svc := NewActionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"rule-1"}).Return(pgconn.NewCommandTag("DELETE 2"), nil)

	require.NoError(t, svc.DeleteByRule(ctx, "rule-1"))
}
