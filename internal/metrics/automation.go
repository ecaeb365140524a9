package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_rules_evaluated_total",
		Help: "Total number of rule trigger evaluations",
	})

	RulesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_rules_executed_total",
			Help: "Total number of rule executions by outcome",
		},
		[]string{"outcome"},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_actions_total",
			Help: "Total number of action executions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ActionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_action_attempts_total",
			Help: "Total number of action dispatch attempts by type",
		},
		[]string{"type"},
	)

	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_cycle_errors_total",
			Help: "Total number of per-rule errors caught by the processing cycle",
		},
		[]string{"pass"},
	)

	RuleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_rule_duration_seconds",
		Help:    "Wall-clock duration of rule executions",
		Buckets: prometheus.DefBuckets,
	})
)
