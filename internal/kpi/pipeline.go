package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// targetLookback is how many earlier data points are checked before a
// target_achieved alert is raised.
const targetLookback = 5

// Store is the persistence the pipeline needs.
type Store interface {
	GetKPI(ctx context.Context, tenantID, kpiID string) (*model.KPI, error)
	// ListDependents returns active calculated KPIs that list kpiID as a parent.
	ListDependents(ctx context.Context, tenantID, kpiID string) ([]model.KPI, error)
	// ListCalculated returns active calculated KPIs; all tenants when tenantID is empty.
	ListCalculated(ctx context.Context, tenantID string) ([]model.KPI, error)
	LatestValues(ctx context.Context, tenantID string, kpiIDs []string) (map[string]float64, error)
	ValuesBefore(ctx context.Context, kpiID string, date time.Time, limit int) ([]float64, error)
	UpsertDataPoint(ctx context.Context, dp model.KPIDataPoint) error
	HasOpenAlert(ctx context.Context, kpiID, alertType, severity string) (bool, error)
	CreateAlert(ctx context.Context, alert model.KPIAlert) error
	ListOpenAlerts(ctx context.Context, kpiID, alertType string) ([]model.KPIAlert, error)
	ResolveAlert(ctx context.Context, alertID string, at time.Time) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, notes []model.Notification) error
}

// WriteResult describes everything one data point write caused.
type WriteResult struct {
	DataPoints     int      `json:"data_points"`
	AlertsCreated  int      `json:"alerts_created"`
	AlertsResolved int      `json:"alerts_resolved"`
	Recomputed     []string `json:"recomputed,omitempty"`
}

func (r *WriteResult) add(o WriteResult) {
	r.DataPoints += o.DataPoints
	r.AlertsCreated += o.AlertsCreated
	r.AlertsResolved += o.AlertsResolved
	r.Recomputed = append(r.Recomputed, o.Recomputed...)
}

// Pipeline runs DataPointWritten -> ThresholdCheck -> AlertCreated/Resolved,
// then DataPointWritten -> RecomputeDependents, synchronously and in that
// order. A KPI is recomputed at most once per originating write.
type Pipeline struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

func NewPipeline(store Store, notifier Notifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "kpi-pipeline").Logger(),
	}
}

// Write stores a data point for a KPI of the tenant and runs the pipeline.
func (p *Pipeline) Write(ctx context.Context, tenantID string, dp model.KPIDataPoint) (WriteResult, error) {
	k, err := p.store.GetKPI(ctx, tenantID, dp.KPIID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write data point: %w", err)
	}
	visited := map[string]bool{k.ID: true}
	return p.write(ctx, k, dp, visited)
}

// RecalculateAll recomputes every calculated KPI for date and writes the
// results through the pipeline. Failures of single KPIs are logged and
// skipped.
func (p *Pipeline) RecalculateAll(ctx context.Context, tenantID string, date time.Time) (WriteResult, error) {
	kpis, err := p.store.ListCalculated(ctx, tenantID)
	if err != nil {
		return WriteResult{}, fmt.Errorf("list calculated kpis: %w", err)
	}
	var total WriteResult
	visited := map[string]bool{}
	for i := range kpis {
		k := &kpis[i]
		if visited[k.ID] {
			continue
		}
		visited[k.ID] = true
		res, err := p.recompute(ctx, k, date, "Daily recalculation", visited)
		if err != nil {
			p.logger.Warn().Err(err).Str("kpi", k.ID).Msg("recalculate kpi")
			continue
		}
		total.add(res)
	}
	return total, nil
}

// Compute evaluates a calculated KPI against its parents' latest values.
func (p *Pipeline) Compute(ctx context.Context, k *model.KPI) (float64, error) {
	expr, err := FormulaFor(k)
	if err != nil {
		return 0, err
	}
	values, err := p.store.LatestValues(ctx, k.TenantID, expr.Refs())
	if err != nil {
		return 0, fmt.Errorf("latest values: %w", err)
	}
	return expr.Eval(values)
}

func (p *Pipeline) write(ctx context.Context, k *model.KPI, dp model.KPIDataPoint, visited map[string]bool) (WriteResult, error) {
	if dp.ID == "" {
		dp.ID = platform.NewID()
	}
	if dp.CreatedAt.IsZero() {
		dp.CreatedAt = p.now()
	}
	dp.KPIID = k.ID
	if err := p.store.UpsertDataPoint(ctx, dp); err != nil {
		return WriteResult{}, fmt.Errorf("upsert data point: %w", err)
	}
	res := WriteResult{DataPoints: 1}

	created, err := p.checkThresholds(ctx, k, dp)
	if err != nil {
		return res, err
	}
	res.AlertsCreated = created

	resolved, err := p.resolveAlerts(ctx, k, dp.Value)
	if err != nil {
		return res, err
	}
	res.AlertsResolved = resolved

	deps, err := p.store.ListDependents(ctx, k.TenantID, k.ID)
	if err != nil {
		return res, fmt.Errorf("list dependents of %s: %w", k.ID, err)
	}
	for i := range deps {
		dep := &deps[i]
		if visited[dep.ID] {
			continue
		}
		visited[dep.ID] = true
		sub, err := p.recompute(ctx, dep, dp.Date, "Auto-calculated from "+k.Name, visited)
		if err != nil {
			if errors.Is(err, ErrDivisionByZero) || errors.Is(err, ErrInvalidFormula) || errors.Is(err, ErrNotCalculated) {
				p.logger.Warn().Err(err).Str("kpi", dep.ID).Msg("dependent kpi not recomputed")
				continue
			}
			return res, err
		}
		res.add(sub)
	}
	return res, nil
}

func (p *Pipeline) recompute(ctx context.Context, k *model.KPI, date time.Time, notes string, visited map[string]bool) (WriteResult, error) {
	value, err := p.Compute(ctx, k)
	if err != nil {
		return WriteResult{}, fmt.Errorf("compute %s: %w", k.ID, err)
	}
	res, err := p.write(ctx, k, model.KPIDataPoint{
		KPIID:  k.ID,
		Date:   date,
		Value:  value,
		Source: model.KPISourceCalculated,
		Notes:  notes,
	}, visited)
	res.Recomputed = append([]string{k.ID}, res.Recomputed...)
	return res, err
}

type alertSpec struct {
	typ       string
	severity  string
	title     string
	message   string
	threshold float64
}

// breaches reports whether value is on the bad side of threshold.
func breaches(trend string, value, threshold float64) bool {
	switch trend {
	case model.TrendUpGood:
		return value < threshold
	case model.TrendDownGood:
		return value > threshold
	}
	return false
}

// reaches reports whether value meets the target.
func reaches(trend string, value, target float64) bool {
	switch trend {
	case model.TrendUpGood:
		return value >= target
	case model.TrendDownGood:
		return value <= target
	}
	return false
}

func (p *Pipeline) checkThresholds(ctx context.Context, k *model.KPI, dp model.KPIDataPoint) (int, error) {
	var specs []alertSpec
	side := "below"
	if k.TrendDirection == model.TrendDownGood {
		side = "above"
	}

	switch {
	case k.CriticalThreshold != nil && breaches(k.TrendDirection, dp.Value, *k.CriticalThreshold):
		specs = append(specs, alertSpec{
			typ:       model.AlertThresholdBreach,
			severity:  model.SeverityCritical,
			title:     fmt.Sprintf("%s %s critical threshold", k.Name, side),
			message:   fmt.Sprintf("Current value (%g) is %s the critical threshold (%g)", dp.Value, side, *k.CriticalThreshold),
			threshold: *k.CriticalThreshold,
		})
	case k.WarningThreshold != nil && breaches(k.TrendDirection, dp.Value, *k.WarningThreshold):
		specs = append(specs, alertSpec{
			typ:       model.AlertThresholdBreach,
			severity:  model.SeverityWarning,
			title:     fmt.Sprintf("%s %s warning threshold", k.Name, side),
			message:   fmt.Sprintf("Current value (%g) is %s the warning threshold (%g)", dp.Value, side, *k.WarningThreshold),
			threshold: *k.WarningThreshold,
		})
	}

	if k.TargetValue != nil && reaches(k.TrendDirection, dp.Value, *k.TargetValue) {
		prev, err := p.store.ValuesBefore(ctx, k.ID, dp.Date, targetLookback)
		if err != nil {
			return 0, fmt.Errorf("previous values of %s: %w", k.ID, err)
		}
		first := true
		for _, v := range prev {
			if reaches(k.TrendDirection, v, *k.TargetValue) {
				first = false
				break
			}
		}
		if first {
			specs = append(specs, alertSpec{
				typ:       model.AlertTargetAchieved,
				severity:  model.SeverityInfo,
				title:     fmt.Sprintf("%s target achieved!", k.Name),
				message:   fmt.Sprintf("The target value of %g has been achieved with a current value of %g", *k.TargetValue, dp.Value),
				threshold: *k.TargetValue,
			})
		}
	}

	created := 0
	for _, s := range specs {
		open, err := p.store.HasOpenAlert(ctx, k.ID, s.typ, s.severity)
		if err != nil {
			return created, fmt.Errorf("check open alert: %w", err)
		}
		if open {
			continue
		}
		value, threshold := dp.Value, s.threshold
		alert := model.KPIAlert{
			ID:             platform.NewID(),
			KPIID:          k.ID,
			TenantID:       k.TenantID,
			Type:           s.typ,
			Severity:       s.severity,
			Title:          s.title,
			Message:        s.message,
			TriggerValue:   &value,
			ThresholdValue: &threshold,
			CreatedAt:      p.now(),
		}
		if err := p.store.CreateAlert(ctx, alert); err != nil {
			return created, fmt.Errorf("create alert: %w", err)
		}
		created++
		p.notify(ctx, k, "kpi_alert", alert.Title, alert.Message)
	}
	return created, nil
}

func (p *Pipeline) resolveAlerts(ctx context.Context, k *model.KPI, value float64) (int, error) {
	alerts, err := p.store.ListOpenAlerts(ctx, k.ID, model.AlertThresholdBreach)
	if err != nil {
		return 0, fmt.Errorf("list open alerts: %w", err)
	}
	resolved := 0
	for _, a := range alerts {
		var threshold *float64
		switch a.Severity {
		case model.SeverityCritical:
			threshold = k.CriticalThreshold
		case model.SeverityWarning:
			threshold = k.WarningThreshold
		}
		if threshold == nil || !reaches(k.TrendDirection, value, *threshold) {
			continue
		}
		if err := p.store.ResolveAlert(ctx, a.ID, p.now()); err != nil {
			return resolved, fmt.Errorf("resolve alert %s: %w", a.ID, err)
		}
		resolved++
		p.notify(ctx, k, "info", k.Name+" alert resolved",
			fmt.Sprintf("The alert %q has been automatically resolved. Current value: %g", a.Title, value))
	}
	return resolved, nil
}

func (p *Pipeline) notify(ctx context.Context, k *model.KPI, typ, title, message string) {
	recipients := k.Recipients()
	if len(recipients) == 0 || p.notifier == nil {
		return
	}
	notes := make([]model.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notes = append(notes, model.Notification{
			ID:          platform.NewID(),
			TenantID:    k.TenantID,
			UserID:      userID,
			Type:        typ,
			Title:       title,
			Message:     message,
			ActionURL:   "/kpis/" + k.ID,
			ActionLabel: "View KPI",
			CreatedAt:   p.now(),
		})
	}
	if err := p.notifier.Notify(ctx, notes); err != nil {
		p.logger.Warn().Err(err).Str("kpi", k.ID).Msg("notify stakeholders")
	}
}
