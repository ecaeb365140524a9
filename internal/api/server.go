package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/automation/internal/api/handler"
	mw "github.com/edvin/automation/internal/api/middleware"
	"github.com/edvin/automation/internal/automation"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/kpi"
)

// Pool is the database handle the server needs. *pgxpool.Pool satisfies it.
type Pool interface {
	core.DB
	Ping(ctx context.Context) error
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	pool           Pool
	temporalClient temporalclient.Client
}

func NewServer(logger zerolog.Logger, pool Pool, temporalClient temporalclient.Client) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       core.NewServices(pool),
		pool:           pool,
		temporalClient: temporalClient,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	evaluator := automation.NewEvaluator(s.services.KPI, s.services.Task, automation.SystemClock{}, s.logger)
	pipeline := kpi.NewPipeline(s.services.KPI, s.services.Notification, s.logger)

	rule := handler.NewRule(s.services.Rule, evaluator, s.services.ExecutionLog, s.temporalClient)
	schedule := handler.NewSchedule(s.services.Rule, s.services.Schedule)
	dashboard := handler.NewDashboard(s.services.Dashboard)
	kpis := handler.NewKPI(pipeline)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.services.APIKey))

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Use(mw.RequireTenant)

			r.Route("/rules/{ruleID}", func(r chi.Router) {
				r.Post("/toggle", rule.Toggle)
				r.Post("/execute", rule.Execute)
				r.Post("/reset", rule.Reset)
				r.Get("/evaluate", rule.Evaluate)
				r.Get("/logs", rule.Logs)
				r.Get("/schedule", schedule.Get)
				r.Put("/schedule", schedule.Update)
			})

			r.Get("/automation/analytics", dashboard.Analytics)
			r.Post("/kpis/{kpiID}/datapoints", kpis.CreateDataPoint)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
