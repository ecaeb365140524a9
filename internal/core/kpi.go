package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/automation/internal/model"
)

const kpiColumns = `id, tenant_id, name, data_source_type, calculation_method, formula, parent_ids,
	target_value, warning_threshold, critical_threshold, trend_direction, owner_id, stakeholder_ids, is_active`

const alertColumns = `id, kpi_id, tenant_id, alert_type, severity, title, message, trigger_value, threshold_value,
	is_resolved, resolved_at, created_at`

// KPIService reads KPIs and writes their data points and alerts.
type KPIService struct {
	db DB
}

func NewKPIService(db DB) *KPIService {
	return &KPIService{db: db}
}

func kpiDest(k *model.KPI) []any {
	return []any{&k.ID, &k.TenantID, &k.Name, &k.DataSourceType, &k.CalculationMethod, &k.Formula,
		&k.ParentIDs, &k.TargetValue, &k.WarningThreshold, &k.CriticalThreshold, &k.TrendDirection,
		&k.OwnerID, &k.StakeholderIDs, &k.Active}
}

func (s *KPIService) GetKPI(ctx context.Context, tenantID, kpiID string) (*model.KPI, error) {
	var k model.KPI
	err := s.db.QueryRow(ctx,
		`SELECT `+kpiColumns+` FROM kpis WHERE tenant_id = $1 AND id = $2`, tenantID, kpiID,
	).Scan(kpiDest(&k)...)
	if err != nil {
		return nil, fmt.Errorf("get kpi %s: %w", kpiID, notFound(err))
	}
	return &k, nil
}

// ListDependents returns active calculated KPIs that list kpiID as a parent.
func (s *KPIService) ListDependents(ctx context.Context, tenantID, kpiID string) ([]model.KPI, error) {
	return s.listKPIs(ctx,
		`SELECT `+kpiColumns+` FROM kpis
		 WHERE tenant_id = $1 AND is_active AND data_source_type = 'calculated' AND $2 = ANY(parent_ids)
		 ORDER BY id`, tenantID, kpiID)
}

// ListCalculated returns active calculated KPIs; all tenants when tenantID is empty.
func (s *KPIService) ListCalculated(ctx context.Context, tenantID string) ([]model.KPI, error) {
	query := `SELECT ` + kpiColumns + ` FROM kpis WHERE is_active AND data_source_type = 'calculated'`
	args := []any{}
	if tenantID != "" {
		query += ` AND tenant_id = $1`
		args = append(args, tenantID)
	}
	return s.listKPIs(ctx, query+` ORDER BY tenant_id, id`, args...)
}

func (s *KPIService) listKPIs(ctx context.Context, query string, args ...any) ([]model.KPI, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		var k model.KPI
		if err := rows.Scan(kpiDest(&k)...); err != nil {
			return nil, fmt.Errorf("scan kpi: %w", err)
		}
		kpis = append(kpis, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpis: %w", err)
	}
	return kpis, nil
}

// LatestValue returns the most recent value of a KPI. ok is false when the
// KPI has no data points yet.
func (s *KPIService) LatestValue(ctx context.Context, tenantID, kpiID string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRow(ctx,
		`SELECT dp.value FROM kpi_data_points dp JOIN kpis k ON k.id = dp.kpi_id
		 WHERE k.tenant_id = $1 AND dp.kpi_id = $2
		 ORDER BY dp.date DESC, dp.created_at DESC LIMIT 1`, tenantID, kpiID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest value of kpi %s: %w", kpiID, err)
	}
	return v, true, nil
}

// LatestValues returns the most recent value of each KPI that has one.
func (s *KPIService) LatestValues(ctx context.Context, tenantID string, kpiIDs []string) (map[string]float64, error) {
	values := make(map[string]float64, len(kpiIDs))
	if len(kpiIDs) == 0 {
		return values, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (dp.kpi_id) dp.kpi_id, dp.value
		 FROM kpi_data_points dp JOIN kpis k ON k.id = dp.kpi_id
		 WHERE k.tenant_id = $1 AND dp.kpi_id = ANY($2)
		 ORDER BY dp.kpi_id, dp.date DESC, dp.created_at DESC`, tenantID, kpiIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("latest kpi values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scan kpi value: %w", err)
		}
		values[id] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpi values: %w", err)
	}
	return values, nil
}

// ValuesBefore returns up to limit values recorded before date, newest first.
func (s *KPIService) ValuesBefore(ctx context.Context, kpiID string, date time.Time, limit int) ([]float64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT value FROM kpi_data_points WHERE kpi_id = $1 AND date < $2
		 ORDER BY date DESC, created_at DESC LIMIT $3`, kpiID, date, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("values of kpi %s before %s: %w", kpiID, date.Format(time.DateOnly), err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan kpi value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpi values: %w", err)
	}
	return values, nil
}

// UpsertDataPoint stores a data point; a point with the same KPI, date and
// source is overwritten.
func (s *KPIService) UpsertDataPoint(ctx context.Context, dp model.KPIDataPoint) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO kpi_data_points (id, kpi_id, date, value, source, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (kpi_id, date, source) DO UPDATE SET value = EXCLUDED.value, notes = EXCLUDED.notes`,
		dp.ID, dp.KPIID, dp.Date, dp.Value, dp.Source, dp.Notes, dp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert data point for kpi %s: %w", dp.KPIID, err)
	}
	return nil
}

func (s *KPIService) HasOpenAlert(ctx context.Context, kpiID, alertType, severity string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM kpi_alerts WHERE kpi_id = $1 AND alert_type = $2 AND severity = $3 AND NOT is_resolved)`,
		kpiID, alertType, severity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open alert for kpi %s: %w", kpiID, err)
	}
	return exists, nil
}

func (s *KPIService) CreateAlert(ctx context.Context, a model.KPIAlert) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO kpi_alerts (`+alertColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.KPIID, a.TenantID, a.Type, a.Severity, a.Title, a.Message, a.TriggerValue, a.ThresholdValue,
		a.Resolved, a.ResolvedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert kpi alert: %w", err)
	}
	return nil
}

func (s *KPIService) ListOpenAlerts(ctx context.Context, kpiID, alertType string) ([]model.KPIAlert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+alertColumns+` FROM kpi_alerts WHERE kpi_id = $1 AND alert_type = $2 AND NOT is_resolved
		 ORDER BY created_at`, kpiID, alertType,
	)
	if err != nil {
		return nil, fmt.Errorf("list open alerts for kpi %s: %w", kpiID, err)
	}
	return collectAlerts(rows)
}

func (s *KPIService) ResolveAlert(ctx context.Context, alertID string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE kpi_alerts SET is_resolved = true, resolved_at = $1 WHERE id = $2 AND NOT is_resolved`,
		at, alertID,
	)
	if err != nil {
		return fmt.Errorf("resolve kpi alert %s: %w", alertID, err)
	}
	return nil
}

// ListAlertsSince returns a tenant's alerts created at or after since, newest first.
func (s *KPIService) ListAlertsSince(ctx context.Context, tenantID string, since time.Time) ([]model.KPIAlert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+alertColumns+` FROM kpi_alerts WHERE tenant_id = $1 AND created_at >= $2
		 ORDER BY created_at DESC`, tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list alerts for tenant %s: %w", tenantID, err)
	}
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]model.KPIAlert, error) {
	defer rows.Close()

	var alerts []model.KPIAlert
	for rows.Next() {
		var a model.KPIAlert
		if err := rows.Scan(&a.ID, &a.KPIID, &a.TenantID, &a.Type, &a.Severity, &a.Title, &a.Message,
			&a.TriggerValue, &a.ThresholdValue, &a.Resolved, &a.ResolvedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan kpi alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpi alerts: %w", err)
	}
	return alerts, nil
}
