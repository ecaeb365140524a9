package model

import (
	"encoding/json"
	"time"
)

// KPI data source types.
const (
	KPISourceManual     = "manual"
	KPISourceAPI        = "api"
	KPISourceCalculated = "calculated"
	KPISourceAutomation = "automation"
)

// KPI calculation methods.
const (
	CalculationSum        = "sum"
	CalculationAverage    = "average"
	CalculationCount      = "count"
	CalculationPercentage = "percentage"
	CalculationRatio      = "ratio"
	CalculationCustom     = "custom"
)

// KPI trend directions.
const (
	TrendUpGood     = "up_good"
	TrendDownGood   = "down_good"
	TrendStableGood = "stable_good"
)

// Alert types and severities.
const (
	AlertThresholdBreach = "threshold_breach"
	AlertTargetAchieved  = "target_achieved"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type KPI struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	Name              string          `json:"name"`
	DataSourceType    string          `json:"data_source_type"`
	CalculationMethod string          `json:"calculation_method"`
	Formula           json.RawMessage `json:"formula,omitempty"`
	ParentIDs         []string        `json:"parent_kpi_ids"`
	TargetValue       *float64        `json:"target_value,omitempty"`
	WarningThreshold  *float64        `json:"warning_threshold,omitempty"`
	CriticalThreshold *float64        `json:"critical_threshold,omitempty"`
	TrendDirection    string          `json:"trend_direction"`
	OwnerID           *string         `json:"owner_id,omitempty"`
	StakeholderIDs    []string        `json:"stakeholder_ids"`
	Active            bool            `json:"is_active"`
}

// Recipients returns stakeholders plus the owner, without duplicates.
func (k *KPI) Recipients() []string {
	out := make([]string, 0, len(k.StakeholderIDs)+1)
	seen := make(map[string]bool, len(k.StakeholderIDs)+1)
	for _, id := range k.StakeholderIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if k.OwnerID != nil && !seen[*k.OwnerID] {
		out = append(out, *k.OwnerID)
	}
	return out
}

type KPIDataPoint struct {
	ID        string    `json:"id"`
	KPIID     string    `json:"kpi_id"`
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type KPIAlert struct {
	ID             string     `json:"id"`
	KPIID          string     `json:"kpi_id"`
	TenantID       string     `json:"tenant_id"`
	Type           string     `json:"alert_type"`
	Severity       string     `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	TriggerValue   *float64   `json:"trigger_value,omitempty"`
	ThresholdValue *float64   `json:"threshold_value,omitempty"`
	Resolved       bool       `json:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
