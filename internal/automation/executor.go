package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/metrics"
	"github.com/edvin/automation/internal/model"
)

// ActionResult reports the outcome of one action execution.
type ActionResult struct {
	ActionID string
	Success  bool
	Attempts int
	// Err is the error of the last failed attempt, or the configuration
	// error when no attempt was made.
	Err error
	// Unexpected is set when a handler panicked on its last failed attempt.
	Unexpected error
	Duration   time.Duration
}

// Executor runs a single action with its delay and retry policy.
type Executor struct {
	sink   ActionSink
	clock  Clock
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

func NewExecutor(sink ActionSink, clock Clock, logger zerolog.Logger) *Executor {
	return &Executor{
		sink:   sink,
		clock:  clock,
		sleep:  sleepContext,
		logger: logger.With().Str("component", "action-executor").Logger(),
	}
}

// Execute runs the action and never returns an error: every failure,
// including a panicking handler, is folded into the result. The pre-action
// delay happens once; retry delays only separate failed attempts.
func (x *Executor) Execute(ctx context.Context, inv Invocation, action *model.Action) ActionResult {
	start := x.clock.Now()
	res := ActionResult{ActionID: action.ID}
	inv.ActionID = action.ID
	log := x.logger.With().
		Str("tenant", inv.TenantID).
		Str("rule", inv.RuleID).
		Str("action", action.ID).
		Str("type", string(action.Type)).
		Logger()

	defer func() {
		res.Duration = x.clock.Now().Sub(start)
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		metrics.ActionsExecuted.WithLabelValues(string(action.Type), outcome).Inc()
	}()

	cfg, err := ParseAction(action.Type, action.Config)
	if err != nil {
		log.Warn().Err(err).Msg("action configuration rejected")
		res.Err = err
		return res
	}

	if err := x.sleep(ctx, seconds(action.DelaySeconds)); err != nil {
		res.Err = err
		return res
	}

	maxAttempts := action.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for res.Attempts < maxAttempts {
		res.Attempts++
		metrics.ActionAttempts.WithLabelValues(string(action.Type)).Inc()

		err := x.dispatch(ctx, cfg, inv)
		if err == nil {
			res.Success = true
			res.Err = nil
			res.Unexpected = nil
			return res
		}

		res.Err = err
		res.Unexpected = nil
		var pe *PanicError
		if errors.As(err, &pe) {
			res.Unexpected = err
		}
		log.Warn().Err(err).Int("attempt", res.Attempts).Int("max_attempts", maxAttempts).Msg("action attempt failed")

		if res.Attempts < maxAttempts {
			if err := x.sleep(ctx, seconds(action.RetryDelaySeconds)); err != nil {
				res.Err = err
				return res
			}
		}
	}
	return res
}

func (x *Executor) dispatch(ctx context.Context, cfg ActionConfig, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispatch %s: %w", cfg.ActionType(), err)
	}
	return cfg.dispatch(ctx, x.sink, inv)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// sleepContext waits for d or until ctx is done. Non-positive durations
// return immediately.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
