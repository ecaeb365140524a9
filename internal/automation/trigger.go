package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/metrics"
	"github.com/edvin/automation/internal/model"
)

// TriggerConfig is the typed configuration of one trigger type.
type TriggerConfig interface {
	TriggerType() model.TriggerType
}

type KPIThresholdTrigger struct {
	KPIID     string   `json:"kpi_id" validate:"required"`
	Operator  string   `json:"operator" validate:"required,oneof=gt lt eq gte lte"`
	Threshold *float64 `json:"threshold" validate:"required"`
}

func (KPIThresholdTrigger) TriggerType() model.TriggerType { return model.TriggerKPIThreshold }

type TaskStatusTrigger struct {
	TaskID string `json:"task_id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

func (TaskStatusTrigger) TriggerType() model.TriggerType { return model.TriggerTaskStatus }

type TimeBasedTrigger struct {
	Schedule  string `json:"schedule" validate:"required,oneof=daily weekly monthly"`
	TimeOfDay string `json:"time_of_day" validate:"required,clock"`
}

func (TimeBasedTrigger) TriggerType() model.TriggerType { return model.TriggerTimeBased }

// InertTrigger stands in for trigger types that are accepted but have no
// condition logic. They never fire on their own.
type InertTrigger struct {
	Type model.TriggerType
}

func (t InertTrigger) TriggerType() model.TriggerType { return t.Type }

// ParseTrigger decodes and validates raw trigger configuration for the given
// type. Every failure wraps ErrInvalidConfig.
func ParseTrigger(t model.TriggerType, raw json.RawMessage) (TriggerConfig, error) {
	switch t {
	case model.TriggerKPIThreshold:
		var cfg KPIThresholdTrigger
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case model.TriggerTaskStatus:
		var cfg TaskStatusTrigger
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case model.TriggerTimeBased:
		var cfg TimeBasedTrigger
		if err := decodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case model.TriggerProjectMilestone, model.TriggerDataAnomaly,
		model.TriggerUserAction, model.TriggerExternalEvent:
		return InertTrigger{Type: t}, nil
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidConfig, t)
	}
}

func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CanExecute is the precondition shared by every dispatch path. It is
// independent of whether the trigger condition holds.
func CanExecute(rule *model.Rule, now time.Time) bool {
	if !rule.Enabled || rule.Status != model.RuleStatusActive {
		return false
	}
	if rule.StartDate != nil && now.Before(*rule.StartDate) {
		return false
	}
	if rule.EndDate != nil && now.After(*rule.EndDate) {
		return false
	}
	return !rule.Exhausted()
}

// Evaluator decides whether a rule's trigger condition currently holds.
// It only reads external state.
type Evaluator struct {
	kpis   KPIValueReader
	tasks  TaskReader
	clock  Clock
	logger zerolog.Logger
}

func NewEvaluator(kpis KPIValueReader, tasks TaskReader, clock Clock, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		kpis:   kpis,
		tasks:  tasks,
		clock:  clock,
		logger: logger.With().Str("component", "trigger-evaluator").Logger(),
	}
}

// Evaluate reports whether the rule's condition holds. Malformed
// configuration yields false with no error; only reader failures are
// returned as errors.
func (e *Evaluator) Evaluate(ctx context.Context, rule *model.Rule) (bool, error) {
	metrics.RulesEvaluated.Inc()

	cfg, err := ParseTrigger(rule.TriggerType, rule.TriggerConfig)
	if err != nil {
		e.logger.Debug().Err(err).Str("rule", rule.ID).Msg("rule trigger is not configured, treating as inert")
		return false, nil
	}

	switch c := cfg.(type) {
	case KPIThresholdTrigger:
		return e.evaluateKPIThreshold(ctx, rule.TenantID, c)
	case TaskStatusTrigger:
		status, ok, err := e.tasks.TaskStatus(ctx, rule.TenantID, c.TaskID)
		if err != nil {
			return false, persistenceErr("read task status", err)
		}
		return ok && status == c.Status, nil
	case TimeBasedTrigger:
		return evaluateTimeOfDay(c, e.clock.Now()), nil
	default:
		return false, nil
	}
}

// ShouldTrigger is CanExecute AND Evaluate.
func (e *Evaluator) ShouldTrigger(ctx context.Context, rule *model.Rule) (bool, error) {
	if !CanExecute(rule, e.clock.Now()) {
		return false, nil
	}
	return e.Evaluate(ctx, rule)
}

func (e *Evaluator) evaluateKPIThreshold(ctx context.Context, tenantID string, c KPIThresholdTrigger) (bool, error) {
	value, ok, err := e.kpis.LatestValue(ctx, tenantID, c.KPIID)
	if err != nil {
		return false, persistenceErr("read kpi value", err)
	}
	if !ok {
		return false, nil
	}
	return compare(value, c.Operator, *c.Threshold), nil
}

func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	}
	return false
}

// evaluateTimeOfDay matches the configured "HH:MM" against the current UTC
// minute. Only daily schedules are evaluated; time-based rules that need
// weekly or monthly cadence are driven by their Schedule instead.
func evaluateTimeOfDay(c TimeBasedTrigger, now time.Time) bool {
	if c.Schedule != model.FrequencyDaily {
		return false
	}
	h, m, err := parseClock(c.TimeOfDay)
	if err != nil {
		return false
	}
	now = now.UTC()
	return now.Hour() == h && now.Minute() == m
}
