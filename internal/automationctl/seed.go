// Package automationctl loads rule definitions from YAML into the
// automation store.
package automationctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

var validate = validator.New()

type RuleUpserter interface {
	Upsert(ctx context.Context, r *model.Rule) (string, error)
}

type ActionReplacer interface {
	DeleteByRule(ctx context.Context, ruleID string) error
	Create(ctx context.Context, a *model.Action) error
}

type ScheduleUpserter interface {
	GetByRule(ctx context.Context, tenantID, ruleID string) (*model.Schedule, error)
	Upsert(ctx context.Context, sc *model.Schedule) error
}

// Seeder writes seed files through the stores.
type Seeder struct {
	Rules     RuleUpserter
	Actions   ActionReplacer
	Schedules ScheduleUpserter
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Summary counts what a seed run wrote.
type Summary struct {
	Rules     int
	Actions   int
	Schedules int
}

// LoadSeedFile reads and validates a seed file. Trigger and action configs
// are checked against their types so a bad file fails before any write.
func LoadSeedFile(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*SeedConfig, error) {
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate seed file: %w", err)
	}

	names := map[string]bool{}
	for i := range cfg.Rules {
		rd := &cfg.Rules[i]
		if names[rd.Name] {
			return nil, fmt.Errorf("rule %q is defined twice", rd.Name)
		}
		names[rd.Name] = true

		if err := rd.check(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rd.Name, err)
		}
	}
	return &cfg, nil
}

func (rd *RuleDef) check() error {
	raw, err := toJSON(rd.Trigger)
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	if _, err := automation.ParseTrigger(model.TriggerType(rd.TriggerType), raw); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	if rd.Schedule != nil && model.TriggerType(rd.TriggerType) != model.TriggerTimeBased {
		return errors.New("schedule is only valid on time_based rules")
	}
	if rd.StartDate != "" && rd.EndDate != "" && rd.EndDate < rd.StartDate {
		return errors.New("end_date is before start_date")
	}

	actions := map[string]bool{}
	for _, ad := range rd.Actions {
		if actions[ad.Name] {
			return fmt.Errorf("action %q is defined twice", ad.Name)
		}
		actions[ad.Name] = true

		raw, err := toJSON(ad.Config)
		if err != nil {
			return fmt.Errorf("action %q: %w", ad.Name, err)
		}
		if _, err := automation.ParseAction(model.ActionType(ad.Type), raw); err != nil {
			return fmt.Errorf("action %q: %w", ad.Name, err)
		}
	}
	return nil
}

// Seed upserts every rule by (tenant, name), replaces its actions and, for
// rules that define one, upserts the schedule with a freshly computed
// next_run. Rules run in file order; the first failure stops the run.
func (s *Seeder) Seed(ctx context.Context, cfg *SeedConfig) (Summary, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	var sum Summary
	for i := range cfg.Rules {
		rd := &cfg.Rules[i]
		rule, err := buildRule(cfg, rd)
		if err != nil {
			return sum, fmt.Errorf("rule %q: %w", rd.Name, err)
		}

		ruleID, err := s.Rules.Upsert(ctx, rule)
		if err != nil {
			return sum, err
		}
		sum.Rules++

		if err := s.Actions.DeleteByRule(ctx, ruleID); err != nil {
			return sum, err
		}
		for _, ad := range rd.Actions {
			a, err := buildAction(ruleID, ad, now)
			if err != nil {
				return sum, fmt.Errorf("rule %q action %q: %w", rd.Name, ad.Name, err)
			}
			if err := s.Actions.Create(ctx, a); err != nil {
				return sum, err
			}
			sum.Actions++
		}

		if rd.Schedule != nil {
			if err := s.upsertSchedule(ctx, cfg.Tenant, ruleID, *rd.Schedule, now); err != nil {
				return sum, fmt.Errorf("rule %q: %w", rd.Name, err)
			}
			sum.Schedules++
		}

		s.Logger.Info().
			Str("rule", rd.Name).
			Str("rule_id", ruleID).
			Int("actions", len(rd.Actions)).
			Bool("scheduled", rd.Schedule != nil).
			Msg("rule seeded")
	}
	return sum, nil
}

func (s *Seeder) upsertSchedule(ctx context.Context, tenantID, ruleID string, def ScheduleDef, now time.Time) error {
	sc, err := s.Schedules.GetByRule(ctx, tenantID, ruleID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		sc = &model.Schedule{ID: platform.NewID(), RuleID: ruleID, TenantID: tenantID}
	case err != nil:
		return err
	}

	if err := applyScheduleDef(sc, def); err != nil {
		return err
	}
	next, err := automation.ComputeNextRun(sc, now)
	if err != nil {
		return fmt.Errorf("compute next run: %w", err)
	}
	sc.NextRun = next
	sc.Active = !automation.PastEndDate(sc, next)
	return s.Schedules.Upsert(ctx, sc)
}

// NextRun computes when a schedule described by def would next fire.
func NextRun(def ScheduleDef, now time.Time) (time.Time, error) {
	if err := validate.Struct(&def); err != nil {
		return time.Time{}, err
	}
	var sc model.Schedule
	if err := applyScheduleDef(&sc, def); err != nil {
		return time.Time{}, err
	}
	return automation.ComputeNextRun(&sc, now)
}

func applyScheduleDef(sc *model.Schedule, def ScheduleDef) error {
	start, err := time.Parse(time.DateOnly, def.StartDate)
	if err != nil {
		return fmt.Errorf("schedule start_date: %w", err)
	}
	end, err := parseOptionalDate(def.EndDate)
	if err != nil {
		return fmt.Errorf("schedule end_date: %w", err)
	}
	sc.Frequency = def.Frequency
	sc.StartTime = def.StartTime
	sc.Timezone = def.Timezone
	sc.CronExpression = def.CronExpression
	sc.StartDate = start
	sc.EndDate = end
	return nil
}

func buildRule(cfg *SeedConfig, rd *RuleDef) (*model.Rule, error) {
	trigger, err := toJSON(rd.Trigger)
	if err != nil {
		return nil, err
	}
	start, err := parseOptionalDate(rd.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseOptionalDate(rd.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}

	timeout := rd.TimeoutSeconds
	if timeout == 0 {
		timeout = model.DefaultRuleTimeoutSeconds
	}
	return &model.Rule{
		ID:             platform.NewID(),
		TenantID:       cfg.Tenant,
		Name:           rd.Name,
		Description:    rd.Description,
		Status:         model.RuleStatusActive,
		TriggerType:    model.TriggerType(rd.TriggerType),
		TriggerConfig:  trigger,
		Enabled:        boolOr(rd.Enabled, true),
		RunOnce:        rd.RunOnce,
		MaxExecutions:  rd.MaxExecutions,
		StartDate:      start,
		EndDate:        end,
		Priority:       rd.Priority,
		TimeoutSeconds: timeout,
		CreatedBy:      cfg.CreatedBy,
	}, nil
}

func buildAction(ruleID string, ad ActionDef, now time.Time) (*model.Action, error) {
	raw, err := toJSON(ad.Config)
	if err != nil {
		return nil, err
	}
	return &model.Action{
		ID:                platform.NewID(),
		RuleID:            ruleID,
		Name:              ad.Name,
		Description:       ad.Description,
		Type:              model.ActionType(ad.Type),
		Config:            raw,
		Enabled:           boolOr(ad.Enabled, true),
		Order:             ad.Order,
		ContinueOnFailure: ad.ContinueOnFailure,
		DelaySeconds:      ad.DelaySeconds,
		MaxRetries:        ad.MaxRetries,
		RetryDelaySeconds: ad.RetryDelaySeconds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// toJSON converts a YAML mapping into a JSON config blob. An absent
// mapping becomes {}.
func toJSON(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return b, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
