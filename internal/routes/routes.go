package routes

import (
	"net/http"
	"time"

	"github.com/mailgoal/mailgoal/internal/app"
	"github.com/mailgoal/mailgoal/internal/handler"
	"github.com/mailgoal/mailgoal/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	cfg := app.Cfg

	// Handlers
	dispatch := handler.NewDispatchHandler(app.Dispatcher, cfg.BatchTimeout, cfg.IsDevelopment(), cfg.EnableManualTrigger, cfg.CronSecret)
	goal := handler.NewGoalHandler(app.GoalService)
	testEmail := handler.NewTestEmailHandler(app.Generator, app.GenerationGate, app.EmailService, cfg.Location, cfg.IsDevelopment())
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()

	// Trigger endpoints (rate limited per client IP)
	triggerLimit := middleware.RateLimit(10, time.Minute)
	mux.Handle("GET /api/cron/send-scheduled-emails", triggerLimit(http.HandlerFunc(dispatch.SendScheduled)))
	mux.Handle("POST /api/cron/send-scheduled-emails", triggerLimit(http.HandlerFunc(dispatch.SendScheduled)))
	mux.Handle("GET /api/test-cron", triggerLimit(http.HandlerFunc(dispatch.TestCron)))
	mux.Handle("GET /api/test-email", triggerLimit(http.HandlerFunc(testEmail.Send)))

	// Goals
	mux.Handle("POST /api/goals", middleware.RateLimit(20, time.Minute)(http.HandlerFunc(goal.Create)))
	mux.HandleFunc("GET /goals/complete/{token}", goal.Complete)

	// Health
	mux.HandleFunc("GET /healthz", health.Health)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.Config(cfg), // Config must be first (handlers read it from context)
		middleware.RequestID,
		middleware.RequestLogging,
	)

	return handler
}
