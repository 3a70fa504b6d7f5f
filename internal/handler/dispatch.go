package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/service"
)

// Runner starts a dispatch batch on behalf of an external caller.
type Runner interface {
	Run(ctx context.Context, secret string) (*model.BatchReport, error)
}

type batchResponse struct {
	Success bool `json:"success"`
	*model.BatchReport
}

type DispatchHandler struct {
	runner        Runner
	batchTimeout  time.Duration
	isDev         bool
	manualEnabled bool
	cronSecret    string
}

func NewDispatchHandler(runner Runner, batchTimeout time.Duration, isDev, manualEnabled bool, cronSecret string) *DispatchHandler {
	return &DispatchHandler{
		runner:        runner,
		batchTimeout:  batchTimeout,
		isDev:         isDev,
		manualEnabled: manualEnabled,
		cronSecret:    cronSecret,
	}
}

// SendScheduled is the scheduler's trigger. The secret comes from ?secret= or
// an Authorization: Bearer header.
func (h *DispatchHandler) SendScheduled(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, callerSecret(r))
}

// TestCron runs a batch by hand. Development always allows it; elsewhere it
// needs ENABLE_MANUAL_TRIGGER, dev_test=true and the cron secret.
func (h *DispatchHandler) TestCron(w http.ResponseWriter, r *http.Request) {
	if h.isDev {
		slog.Info("manual dispatch triggered (dev mode)")
		h.run(w, r, h.cronSecret)
		return
	}

	if !h.manualEnabled || r.URL.Query().Get("dev_test") != "true" {
		writeError(w, http.StatusForbidden, "Manual trigger is disabled in this environment")
		return
	}

	secret := callerSecret(r)
	if secret == "" {
		writeError(w, http.StatusForbidden, "Manual trigger requires the cron secret")
		return
	}

	slog.Warn("manual dispatch triggered", "remote_addr", r.RemoteAddr)
	h.run(w, r, secret)
}

func (h *DispatchHandler) run(w http.ResponseWriter, r *http.Request, secret string) {
	// A dropped connection must not abort a half-sent batch.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.batchTimeout)
	defer cancel()

	report, err := h.runner.Run(ctx, secret)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		slog.Warn("unauthorized dispatch attempt", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	case errors.Is(err, service.ErrBatchInProgress):
		writeError(w, http.StatusConflict, "A dispatch batch is already running")
		return
	case err != nil:
		slog.Error("dispatch batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process scheduled emails")
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{Success: true, BatchReport: report})
}

func callerSecret(r *http.Request) string {
	if secret := r.URL.Query().Get("secret"); secret != "" {
		return secret
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
