package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/model"
)

var errStore = errors.New("connection refused")

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock { return &manualClock{now: now} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore implements every engine store in memory. addRule hands back a
// copy so callers and the store count executions independently. Writes
// fail with ctx.Err() once ctx is done, as pgx does.
type memStore struct {
	mu        sync.Mutex
	rules     map[string]*model.Rule
	actions   map[string][]model.Action
	schedules []model.ScheduledRule
	records   []model.ExecutionRecord
	logs      []model.ExecutionLog
	runs      []model.ScheduleRun

	listErr   error
	recordErr error
	actionErr error
}

func newMemStore() *memStore {
	return &memStore{
		rules:   make(map[string]*model.Rule),
		actions: make(map[string][]model.Action),
	}
}

func (s *memStore) addRule(r model.Rule, actions ...model.Action) *model.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := r
	s.rules[r.ID] = &stored
	s.actions[r.ID] = actions
	return &r
}

func (s *memStore) ListActiveRules(_ context.Context, tenantID string) ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Rule
	for _, r := range s.rules {
		if tenantID != "" && r.TenantID != tenantID {
			continue
		}
		if r.Enabled && r.Status == model.RuleStatusActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) GetRule(_ context.Context, tenantID, ruleID string) (*model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return nil, errors.New("rule not found")
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) RecordExecution(ctx context.Context, rec model.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	if r, ok := s.rules[rec.RuleID]; ok {
		r.ExecutionCount++
		t := rec.TriggeredAt
		r.LastTriggered = &t
	}
	s.records = append(s.records, rec)
	s.logs = append(s.logs, rec.Logs...)
	return nil
}

func (s *memStore) ListActions(_ context.Context, _ string, ruleID string) ([]model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actionErr != nil {
		return nil, s.actionErr
	}
	return append([]model.Action(nil), s.actions[ruleID]...), nil
}

func (s *memStore) ListDueSchedules(_ context.Context, tenantID string, now time.Time) ([]model.ScheduledRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.ScheduledRule
	for _, sr := range s.schedules {
		if tenantID != "" && sr.Schedule.TenantID != tenantID {
			continue
		}
		sc := sr.Schedule
		retried := sc.LastRun != nil && !sc.LastRun.Before(sc.NextRun)
		if sc.Active && !sc.NextRun.After(now) && !retried {
			if r, ok := s.rules[sr.Rule.ID]; ok {
				sr.Rule = *r
			}
			out = append(out, sr)
		}
	}
	return out, nil
}

func (s *memStore) RecordScheduleRun(ctx context.Context, run model.ScheduleRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	for i := range s.schedules {
		sc := &s.schedules[i].Schedule
		if sc.ID != run.ScheduleID {
			continue
		}
		lr := run.LastRun
		sc.LastRun = &lr
		if run.NextRun != nil {
			sc.NextRun = *run.NextRun
		}
		sc.Active = run.Active
	}
	return nil
}

func (s *memStore) AppendLog(ctx context.Context, l model.ExecutionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func (s *memStore) logsFor(ruleID string) []model.ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExecutionLog
	for _, l := range s.logs {
		if l.RuleID == ruleID {
			out = append(out, l)
		}
	}
	return out
}

type fakeKPIs struct {
	values map[string]float64
	err    error
}

func (f *fakeKPIs) LatestValue(_ context.Context, _ string, kpiID string) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	v, ok := f.values[kpiID]
	return v, ok, nil
}

type fakeTasks struct {
	statuses map[string]string
}

func (f *fakeTasks) TaskStatus(_ context.Context, _ string, taskID string) (string, bool, error) {
	s, ok := f.statuses[taskID]
	return s, ok, nil
}

// scriptSink implements ActionSink. Scripts named in failures fail once per
// queued error; a queued errPanic panics instead. Every call is recorded.
type scriptSink struct {
	mu       sync.Mutex
	calls    []string
	failures map[string][]error
	onCall   func(name string)
}

var errPanic = errors.New("panic")

func newScriptSink() *scriptSink {
	return &scriptSink{failures: make(map[string][]error)}
}

func (s *scriptSink) fail(name string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = append(s.failures[name], errs...)
}

func (s *scriptSink) record(name string) error {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	var err error
	if q := s.failures[name]; len(q) > 0 {
		err = q[0]
		s.failures[name] = q[1:]
	}
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	if errors.Is(err, errPanic) {
		panic("handler exploded")
	}
	return err
}

func (s *scriptSink) callsTo(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *scriptSink) SendEmail(context.Context, Invocation, SendEmailConfig) error {
	return s.record("email")
}

func (s *scriptSink) SendNotification(context.Context, Invocation, SendNotificationConfig) error {
	return s.record("notification")
}

func (s *scriptSink) CreateTask(context.Context, Invocation, CreateTaskConfig) error {
	return s.record("create_task")
}

func (s *scriptSink) UpdateTask(context.Context, Invocation, UpdateTaskConfig) error {
	return s.record("update_task")
}

func (s *scriptSink) CallWebhook(_ context.Context, _ Invocation, cfg WebhookConfig) error {
	return s.record(cfg.URL)
}

func (s *scriptSink) CreateKPIDataPoint(context.Context, Invocation, KPIDataPointConfig) error {
	return s.record("kpi_datapoint")
}

func (s *scriptSink) GenerateReport(context.Context, Invocation, GenerateReportConfig) error {
	return s.record("report")
}

func (s *scriptSink) AssignUser(context.Context, Invocation, AssignUserConfig) error {
	return s.record("assign_user")
}

func (s *scriptSink) RunScript(_ context.Context, _ Invocation, cfg CustomScriptConfig) error {
	return s.record(cfg.Script)
}

// scriptAction builds an enabled custom_script action whose sink call is
// recorded under name.
func scriptAction(id, name string, order int) model.Action {
	cfg, _ := json.Marshal(map[string]any{"script": name})
	return model.Action{
		ID:      id,
		RuleID:  "rule-1",
		Name:    name,
		Type:    model.ActionCustomScript,
		Config:  cfg,
		Enabled: true,
		Order:   order,
	}
}

func activeRule(id string) model.Rule {
	return model.Rule{
		ID:          id,
		TenantID:    "tenant-1",
		Name:        "rule " + id,
		Status:      model.RuleStatusActive,
		TriggerType: model.TriggerUserAction,
		Enabled:     true,
	}
}

type engineFixture struct {
	store *memStore
	sink  *scriptSink
	clock *manualClock
	kpis  *fakeKPIs
	tasks *fakeTasks
	proc  *Processor
}

func newEngineFixture() *engineFixture {
	return newEngineFixtureAt(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
}

func newEngineFixtureAt(now time.Time) *engineFixture {
	f := &engineFixture{
		store: newMemStore(),
		sink:  newScriptSink(),
		clock: newManualClock(now),
		kpis:  &fakeKPIs{values: map[string]float64{}},
		tasks: &fakeTasks{statuses: map[string]string{}},
	}
	f.proc = NewProcessor(Deps{
		Rules:       f.store,
		Actions:     f.store,
		Schedules:   f.store,
		Logs:        f.store,
		KPIs:        f.kpis,
		Tasks:       f.tasks,
		Sink:        f.sink,
		Clock:       f.clock,
		Logger:      zerolog.Nop(),
		Concurrency: 4,
	})
	return f
}
