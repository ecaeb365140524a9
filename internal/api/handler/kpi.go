package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/automation/internal/api/request"
	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/kpi"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// DataPointWriter writes a KPI data point through the KPI pipeline.
type DataPointWriter interface {
	Write(ctx context.Context, tenantID string, dp model.KPIDataPoint) (kpi.WriteResult, error)
}

type KPI struct {
	writer DataPointWriter
	now    func() time.Time
}

func NewKPI(writer DataPointWriter) *KPI {
	return &KPI{writer: writer, now: func() time.Time { return time.Now().UTC() }}
}

// CreateDataPoint stores an API-sourced value and returns what the write
// caused: alerts raised or resolved and dependent KPIs recomputed.
func (h *KPI) CreateDataPoint(w http.ResponseWriter, r *http.Request) {
	tenantID, kpiID := chi.URLParam(r, "tenantID"), chi.URLParam(r, "kpiID")

	var req request.CreateDataPoint
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)

	res, err := h.writer.Write(r.Context(), tenantID, model.KPIDataPoint{
		ID:        platform.NewID(),
		KPIID:     kpiID,
		Date:      date,
		Value:     *req.Value,
		Source:    model.KPISourceAPI,
		Notes:     req.Notes,
		CreatedAt: h.now(),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, res)
}
