package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/core"
)

// StatsReader computes automation analytics for a tenant.
type StatsReader interface {
	Stats(ctx context.Context, tenantID string, since time.Time) (*core.AutomationStats, error)
}

type Dashboard struct {
	stats StatsReader
	now   func() time.Time
}

func NewDashboard(stats StatsReader) *Dashboard {
	return &Dashboard{stats: stats, now: func() time.Time { return time.Now().UTC() }}
}

// Analytics returns rule totals, executions, per-trigger-type counts, log
// status counts over the analytics window and the latest rule runs.
func (h *Dashboard) Analytics(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	stats, err := h.stats.Stats(r.Context(), tenantID, h.now().Add(-core.AnalyticsWindow))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stats)
}
