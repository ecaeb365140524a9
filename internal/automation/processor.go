package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/automation/internal/metrics"
	"github.com/edvin/automation/internal/model"
	"github.com/edvin/automation/internal/platform"
)

// DefaultConcurrency bounds how many rules a pass processes at once.
const DefaultConcurrency = 8

// Pass names, used in logs and metrics.
const (
	PassConditional = "conditional"
	PassScheduled   = "scheduled"
)

// PassResult counts what one processing pass did.
type PassResult struct {
	Processed int `json:"processed"`
	Triggered int `json:"triggered"`
	Succeeded int `json:"succeeded"`
	Partial   int `json:"partial"`
	Errors    int `json:"errors"`
}

// Deps bundles the collaborators of the engine.
type Deps struct {
	Rules       RuleStore
	Actions     ActionStore
	Schedules   ScheduleStore
	Logs        LogStore
	KPIs        KPIValueReader
	Tasks       TaskReader
	Sink        ActionSink
	Clock       Clock
	Logger      zerolog.Logger
	Concurrency int
}

// Processor runs the conditional and scheduled passes of the processing
// cycle. Both passes are safe to run concurrently and repeatedly.
type Processor struct {
	rules       RuleStore
	schedules   ScheduleStore
	logs        LogStore
	evaluator   *Evaluator
	coordinator *Coordinator
	clock       Clock
	concurrency int
	logger      zerolog.Logger
}

func NewProcessor(d Deps) *Processor {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Concurrency <= 0 {
		d.Concurrency = DefaultConcurrency
	}
	executor := NewExecutor(d.Sink, d.Clock, d.Logger)
	return &Processor{
		rules:       d.Rules,
		schedules:   d.Schedules,
		logs:        d.Logs,
		evaluator:   NewEvaluator(d.KPIs, d.Tasks, d.Clock, d.Logger),
		coordinator: NewCoordinator(d.Rules, d.Actions, executor, d.Clock, d.Logger),
		clock:       d.Clock,
		concurrency: d.Concurrency,
		logger:      d.Logger.With().Str("component", "processor").Logger(),
	}
}

// Evaluator exposes the trigger evaluator for dry runs.
func (p *Processor) Evaluator() *Evaluator { return p.evaluator }

// RunConditionalPass evaluates every enabled active rule of the tenant (all
// tenants when tenantID is empty) and executes the ones whose trigger holds.
// Per-rule failures are logged and counted; only a failure to list rules or
// a pass in which every rule failed on persistence is returned.
func (p *Processor) RunConditionalPass(ctx context.Context, tenantID string) (PassResult, error) {
	rules, err := p.rules.ListActiveRules(ctx, tenantID)
	if err != nil {
		return PassResult{}, fmt.Errorf("list active rules: %w", err)
	}

	t := newTally(PassConditional)
	progress := ProgressFrom(ctx)
	p.fanOut(ctx, len(rules), func(ctx context.Context, i int) {
		rule := &rules[i]
		if progress != nil {
			progress(PassConditional + " " + rule.ID)
		}
		err := p.guard(func() error {
			ok, err := p.evaluator.ShouldTrigger(ctx, rule)
			if err != nil || !ok {
				return err
			}
			res, err := p.coordinator.Execute(ctx, rule, map[string]any{
				"source":       PassConditional,
				"trigger_type": rule.TriggerType,
			})
			if err != nil {
				return err
			}
			t.executed(res)
			return nil
		})
		if err != nil {
			p.recordFailure(ctx, rule, PassConditional, err)
		}
		t.processed(err)
	})

	return t.finish(p.logger, len(rules))
}

// RunScheduledPass executes the rules of every active schedule that is due
// and advances each schedule. last_run is written even when next_run
// cannot be recomputed or ctx expired while the rule ran.
func (p *Processor) RunScheduledPass(ctx context.Context, tenantID string) (PassResult, error) {
	now := p.clock.Now()
	due, err := p.schedules.ListDueSchedules(ctx, tenantID, now)
	if err != nil {
		return PassResult{}, fmt.Errorf("list due schedules: %w", err)
	}

	t := newTally(PassScheduled)
	progress := ProgressFrom(ctx)
	p.fanOut(ctx, len(due), func(ctx context.Context, i int) {
		sr := &due[i]
		if progress != nil {
			progress(PassScheduled + " " + sr.Rule.ID)
		}
		err := p.guard(func() error {
			res, err := p.coordinator.Execute(ctx, &sr.Rule, map[string]any{
				"source":      PassScheduled,
				"schedule_id": sr.Schedule.ID,
			})
			if err != nil {
				return err
			}
			t.executed(res)
			return p.advanceSchedule(ctx, &sr.Schedule)
		})
		if err != nil {
			p.recordFailure(ctx, &sr.Rule, PassScheduled, err)
		}
		t.processed(err)
	})

	return t.finish(p.logger, len(due))
}

// ExecuteRule runs a single rule on demand, bypassing its trigger but not
// CanExecute.
func (p *Processor) ExecuteRule(ctx context.Context, tenantID, ruleID string) (ExecutionResult, error) {
	rule, err := p.rules.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return ExecutionResult{}, persistenceErr("get rule", err)
	}
	return p.coordinator.Execute(ctx, rule, map[string]any{"source": "manual"})
}

func (p *Processor) advanceSchedule(ctx context.Context, s *model.Schedule) error {
	now := p.clock.Now()
	run := model.ScheduleRun{ScheduleID: s.ID, LastRun: now, Active: s.Active}

	next, err := ComputeNextRun(s, now)
	if err != nil {
		p.logger.Error().Err(err).Str("schedule", s.ID).Msg("cannot compute next run, keeping last value")
	} else {
		run.NextRun = &next
		if PastEndDate(s, next) {
			run.Active = false
		}
	}
	if s.Frequency == model.FrequencyOnce {
		run.Active = false
	}

	recCtx, cancel := detached(ctx)
	defer cancel()
	if err := p.schedules.RecordScheduleRun(recCtx, run); err != nil {
		return persistenceErr("record schedule run", err)
	}
	s.LastRun = &now
	if run.NextRun != nil {
		s.NextRun = *run.NextRun
	}
	s.Active = run.Active
	return nil
}

// guard converts a panic in fn into an error.
func (p *Processor) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

func (p *Processor) recordFailure(ctx context.Context, rule *model.Rule, pass string, err error) {
	metrics.CycleErrors.WithLabelValues(pass).Inc()
	p.logger.Error().Err(err).
		Str("pass", pass).
		Str("tenant", rule.TenantID).
		Str("rule", rule.ID).
		Msg("error processing automation rule")

	entry := model.ExecutionLog{
		ID:        platform.NewID(),
		TenantID:  rule.TenantID,
		RuleID:    rule.ID,
		Status:    model.LogStatusError,
		Message:   fmt.Sprintf("Error during %s pass: %v", pass, err),
		CreatedAt: p.clock.Now(),
	}
	logCtx, cancel := detached(ctx)
	defer cancel()
	if lerr := p.logs.AppendLog(logCtx, entry); lerr != nil {
		p.logger.Error().Err(lerr).Str("rule", rule.ID).Msg("append error log")
	}
}

// fanOut calls fn for every index with at most p.concurrency calls in
// flight. fn never fails the group.
func (p *Processor) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

type tally struct {
	pass string

	mu          sync.Mutex
	res         PassResult
	persistence int
}

func newTally(pass string) *tally {
	return &tally{pass: pass}
}

func (t *tally) executed(res ExecutionResult) {
	if !res.Executed {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.res.Triggered++
	if res.Clean {
		t.res.Succeeded++
	} else {
		t.res.Partial++
	}
}

func (t *tally) processed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.res.Processed++
	if err == nil {
		return
	}
	t.res.Errors++
	var pe *PersistenceError
	if errors.As(err, &pe) {
		t.persistence++
	}
}

func (t *tally) finish(logger zerolog.Logger, total int) (PassResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	logger.Info().
		Str("pass", t.pass).
		Int("processed", t.res.Processed).
		Int("triggered", t.res.Triggered).
		Int("errors", t.res.Errors).
		Msg("automation pass completed")
	if total > 0 && t.persistence == total {
		return t.res, fmt.Errorf("%s pass: %w", t.pass, ErrStoreUnavailable)
	}
	return t.res, nil
}
