// Package automation implements the rule engine: trigger evaluation,
// schedule arithmetic, action execution with retry, rule coordination and
// the periodic processing cycle.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/automation/internal/model"
)

var (
	// ErrInvalidConfig marks malformed or incomplete trigger and action
	// configuration. It never escapes the engine as a failure of the cycle.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTimeoutExceeded is reported when a rule exhausts its time budget.
	ErrTimeoutExceeded = errors.New("rule timeout exceeded")

	// ErrStoreUnavailable is returned by a pass when every rule in it failed
	// on persistence, so the caller can back off the whole cycle.
	ErrStoreUnavailable = errors.New("automation store unavailable")
)

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unexpected panic: %v", e.Value)
}

// recordTimeout bounds writes that follow side effects. They run on a
// context detached from the caller so an expired pass still records what
// its actions did.
const recordTimeout = 30 * time.Second

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

type progressKey struct{}

// WithProgress returns a context whose passes call fn with a short detail
// before each rule they process.
func WithProgress(ctx context.Context, fn func(detail string)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFrom returns the progress callback of ctx, or nil.
func ProgressFrom(ctx context.Context) func(detail string) {
	fn, _ := ctx.Value(progressKey{}).(func(detail string))
	return fn
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// KPIValueReader reads the latest recorded value of a KPI.
type KPIValueReader interface {
	LatestValue(ctx context.Context, tenantID, kpiID string) (float64, bool, error)
}

// TaskReader reads the current status of a task.
type TaskReader interface {
	TaskStatus(ctx context.Context, tenantID, taskID string) (string, bool, error)
}

// RuleStore persists rules. An empty tenantID lists across all tenants.
type RuleStore interface {
	ListActiveRules(ctx context.Context, tenantID string) ([]model.Rule, error)
	GetRule(ctx context.Context, tenantID, ruleID string) (*model.Rule, error)
	// RecordExecution atomically increments the counter, sets last_triggered
	// and appends the run's log rows.
	RecordExecution(ctx context.Context, rec model.ExecutionRecord) error
}

// ActionStore lists the actions of a rule.
type ActionStore interface {
	ListActions(ctx context.Context, tenantID, ruleID string) ([]model.Action, error)
}

// ScheduleStore persists schedules for time-based rules. A schedule is due
// when it is active, next_run <= now, its rule is enabled and active, and
// last_run is not already at or past next_run.
type ScheduleStore interface {
	ListDueSchedules(ctx context.Context, tenantID string, now time.Time) ([]model.ScheduledRule, error)
	RecordScheduleRun(ctx context.Context, run model.ScheduleRun) error
}

// LogStore appends standalone execution logs.
type LogStore interface {
	AppendLog(ctx context.Context, log model.ExecutionLog) error
}

var validate = validator.New()

func init() {
	validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, _, err := parseClock(fl.Field().String())
		return err == nil
	})
}
