package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/automation/internal/core"
)

func TestDashboardAnalytics(t *testing.T) {
	stats := &mockStats{}
	h := NewDashboard(stats)
	h.now = func() time.Time { return handlerNow }

	since := handlerNow.Add(-30 * 24 * time.Hour)
	stats.On("Stats", mock.Anything, testTenant, since).Return(&core.AutomationStats{
		TotalRules:      4,
		ActiveRules:     3,
		TotalExecutions: 17,
		RulesByTrigger:  []core.TriggerCount{{TriggerType: "kpi_threshold", Count: 2}},
		LogsByStatus:    []core.StatusCount{{Status: "success", Count: 15}, {Status: "error", Count: 2}},
	}, nil)

	r := withChiURLParams(newRequest(http.MethodGet, "/analytics", nil), map[string]string{"tenantID": testTenant})
	rec := httptest.NewRecorder()
	h.Analytics(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var got core.AutomationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.TotalRules)
	assert.Equal(t, 17, got.TotalExecutions)
	assert.Len(t, got.LogsByStatus, 2)
	stats.AssertExpectations(t)
}

func TestDashboardAnalytics_Error(t *testing.T) {
	stats := &mockStats{}
	h := NewDashboard(stats)
	stats.On("Stats", mock.Anything, testTenant, mock.Anything).Return(nil, errors.New("timeout"))

	r := withChiURLParams(newRequest(http.MethodGet, "/analytics", nil), map[string]string{"tenantID": testTenant})
	rec := httptest.NewRecorder()
	h.Analytics(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
