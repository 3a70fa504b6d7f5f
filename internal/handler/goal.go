package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mailgoal/mailgoal/internal/repository"
	"github.com/mailgoal/mailgoal/internal/service"
)

const maxIntakeBody = 16 << 10

var completePage = template.Must(template.New("complete").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 40px auto; padding: 20px;">
  <h1 style="color: #4a5568;">{{.Title}}</h1>
  <p style="font-size: 16px; line-height: 1.6; color: #2d3748;">{{.Message}}</p>
</body>
</html>`))

type GoalHandler struct {
	goalService *service.GoalService
}

func NewGoalHandler(goalService *service.GoalService) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
	}
}

type createGoalResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Create accepts a goal as JSON or as a form post.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIntakeBody)

	var in service.GoalInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&in)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	} else {
		in = service.GoalInput{
			Name:      r.FormValue("name"),
			Email:     r.FormValue("email"),
			Goal:      r.FormValue("goal"),
			Deadline:  r.FormValue("deadline"),
			Frequency: r.FormValue("frequency"),
			Tone:      r.FormValue("tone"),
		}
	}

	goal, err := h.goalService.Create(r.Context(), in)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Error: verr.Err.Error(), Field: verr.Field})
			return
		}
		slog.Error("failed to create goal", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save goal")
		return
	}

	writeJSON(w, http.StatusCreated, createGoalResponse{
		Message: "Goal saved. Your first reminder is on its way with the next dispatch run.",
		ID:      goal.ID,
	})
}

// Complete handles the "I achieved it" link from a reminder.
func (h *GoalHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	goal, err := h.goalService.Complete(r.Context(), token)
	switch {
	case errors.Is(err, service.ErrGoalAlreadyCompleted):
		renderComplete(w, http.StatusOK, "Already done", "This goal is already marked as achieved. No more reminders will be sent.")
	case errors.Is(err, service.ErrInvalidToken):
		renderComplete(w, http.StatusBadRequest, "Link not valid", "This link is invalid or has expired.")
	case errors.Is(err, repository.ErrGoalNotFound):
		renderComplete(w, http.StatusNotFound, "Goal not found", "We could not find this goal.")
	case err != nil:
		slog.Error("failed to complete goal", "error", err)
		renderComplete(w, http.StatusInternalServerError, "Something went wrong", "Please try the link again later.")
	default:
		renderComplete(w, http.StatusOK, "Congratulations, "+goal.Name+"!", "You reached \""+goal.Goal+"\". We will stop the reminders for this goal.")
	}
}

func renderComplete(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := completePage.Execute(w, struct{ Title, Message string }{title, message})
	if err != nil {
		slog.Error("render failed", "error", err)
	}
}
