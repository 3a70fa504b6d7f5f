package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailgoal/mailgoal/internal/content"
	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/queue"
	"github.com/mailgoal/mailgoal/internal/service"
)

// ContentGenerator writes one reminder, falling back to templates on error.
type ContentGenerator interface {
	Generate(ctx context.Context, snap content.Snapshot) content.Content
	Fallback(snap content.Snapshot) content.Content
	Enabled() bool
}

type TestEmailHandler struct {
	generator ContentGenerator
	gate      *queue.Gate
	sender    service.Sender
	location  *time.Location
	isDev     bool
}

// NewTestEmailHandler shares gate with the dispatch batches. A nil gate leaves
// test emails unspaced.
func NewTestEmailHandler(generator ContentGenerator, gate *queue.Gate, sender service.Sender, location *time.Location, isDev bool) *TestEmailHandler {
	if location == nil {
		location = time.UTC
	}
	return &TestEmailHandler{
		generator: generator,
		gate:      gate,
		sender:    sender,
		location:  location,
		isDev:     isDev,
	}
}

type testEmailResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Subject   string `json:"subject"`
	Generated bool   `json:"generated"`
}

// Send delivers a sample reminder for a goal due in 7 days. Development only.
func (h *TestEmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !h.isDev {
		writeError(w, http.StatusForbidden, "Test emails are only available in development")
		return
	}

	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	tone := q.Get("tone")
	if tone == "" {
		tone = model.ToneElon
	}
	name := q.Get("name")
	if name == "" {
		name = "Test User"
	}

	y, m, d := time.Now().In(h.location).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, h.location)
	goal := &model.Goal{
		ID:        "test-email",
		Name:      name,
		Email:     email,
		Goal:      "Launch my side project",
		Frequency: model.FrequencyWeekly,
		Tone:      tone,
	}

	c := h.render(r.Context(), content.NewSnapshot(goal, today.AddDate(0, 0, 7), today))

	id, err := h.sender.Send(r.Context(), service.Message{
		GoalID:  goal.ID,
		To:      email,
		Subject: c.Subject,
		HTML:    c.HTML,
		Text:    c.Text,
	})
	if err != nil {
		slog.Warn("test email failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, testEmailResponse{
		Success:   true,
		MessageID: id,
		Subject:   c.Subject,
		Generated: c.Generated,
	})
}

// render never waits for the backend: when a batch holds the next slot the
// sample uses the fallback template.
func (h *TestEmailHandler) render(ctx context.Context, snap content.Snapshot) content.Content {
	if !h.generator.Enabled() {
		return h.generator.Fallback(snap)
	}
	if h.gate != nil && !h.gate.TryReserve(time.Now()) {
		slog.Info("generation backend busy, test email uses fallback template")
		return h.generator.Fallback(snap)
	}
	return h.generator.Generate(ctx, snap)
}
