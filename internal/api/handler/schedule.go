package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edvin/automation/internal/api/request"
	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// ScheduleStore reads and replaces the schedule of a rule.
type ScheduleStore interface {
	GetByRule(ctx context.Context, tenantID, ruleID string) (*model.Schedule, error)
	Upsert(ctx context.Context, sc *model.Schedule) error
}

type RuleGetter interface {
	GetRule(ctx context.Context, tenantID, ruleID string) (*model.Rule, error)
}

type Schedule struct {
	rules     RuleGetter
	schedules ScheduleStore
	now       func() time.Time
}

func NewSchedule(rules RuleGetter, schedules ScheduleStore) *Schedule {
	return &Schedule{
		rules:     rules,
		schedules: schedules,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Schedule) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)
	sc, err := h.schedules.GetByRule(r.Context(), tenantID, ruleID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sc)
}

// Update replaces the rule's schedule and recomputes next_run from now.
// A schedule whose next run already falls after its end date is stored
// inactive.
func (h *Schedule) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ruleID := ruleParams(r)

	var req request.UpdateSchedule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.rules.GetRule(r.Context(), tenantID, ruleID); err != nil {
		writeStoreError(w, r, err)
		return
	}

	sc, err := h.schedules.GetByRule(r.Context(), tenantID, ruleID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		sc = &model.Schedule{ID: platform.NewID(), RuleID: ruleID, TenantID: tenantID, Active: true}
	case err != nil:
		writeStoreError(w, r, err)
		return
	}

	if err := applySchedule(sc, req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	next, err := automation.ComputeNextRun(sc, h.now())
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, fmt.Sprintf("compute next run: %v", err))
		return
	}
	sc.NextRun = next
	if automation.PastEndDate(sc, next) {
		sc.Active = false
	}

	if err := h.schedules.Upsert(r.Context(), sc); err != nil {
		writeStoreError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sc)
}

func applySchedule(sc *model.Schedule, req request.UpdateSchedule) error {
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	sc.Frequency = req.Frequency
	sc.StartTime = req.StartTime
	sc.Timezone = req.Timezone
	sc.CronExpression = req.CronExpression
	sc.StartDate = start
	sc.EndDate = nil
	if req.EndDate != nil {
		end, err := time.Parse(time.DateOnly, *req.EndDate)
		if err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("end_date is before start_date")
		}
		sc.EndDate = &end
	}
	if req.IsActive != nil {
		sc.Active = *req.IsActive
	}
	return nil
}
