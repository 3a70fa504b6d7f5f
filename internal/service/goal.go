package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/repository"
	"github.com/mailgoal/mailgoal/internal/validation"
)

var ErrGoalAlreadyCompleted = errors.New("goal already completed")

// ValidationError wraps an intake field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// GoalInput is a goal as submitted through the intake form.
type GoalInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Goal      string `json:"goal"`
	Deadline  string `json:"deadline"`
	Frequency string `json:"frequency"`
	Tone      string `json:"tone"`
}

type GoalService struct {
	repo     repository.GoalRepository
	tokens   *TokenService
	location *time.Location
	now      func() time.Time
}

func NewGoalService(repo repository.GoalRepository, tokens *TokenService, location *time.Location) *GoalService {
	if location == nil {
		location = time.UTC
	}
	return &GoalService{
		repo:     repo,
		tokens:   tokens,
		location: location,
		now:      time.Now,
	}
}

// Create validates an intake submission and stores it as a pending goal.
func (s *GoalService) Create(ctx context.Context, in GoalInput) (*model.Goal, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Goal = strings.TrimSpace(in.Goal)
	in.Frequency = strings.ToLower(strings.TrimSpace(in.Frequency))
	in.Tone = strings.TrimSpace(in.Tone)

	if err := validation.ValidateName(in.Name); err != nil {
		return nil, &ValidationError{Field: "name", Err: err}
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, &ValidationError{Field: "email", Err: err}
	}
	if err := validation.ValidateGoalText(in.Goal); err != nil {
		return nil, &ValidationError{Field: "goal", Err: err}
	}
	if err := validation.ValidateFrequency(in.Frequency); err != nil {
		return nil, &ValidationError{Field: "frequency", Err: err}
	}
	if err := validation.ValidateTone(in.Tone); err != nil {
		return nil, &ValidationError{Field: "tone", Err: err}
	}

	now := s.now()
	deadline, err := validation.ParseDeadline(in.Deadline, now.In(s.location))
	if err != nil {
		return nil, &ValidationError{Field: "deadline", Err: err}
	}

	goal := &model.Goal{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Email:     in.Email,
		Goal:      in.Goal,
		Deadline:  deadline,
		Frequency: in.Frequency,
		Tone:      in.Tone,
		Status:    model.GoalStatusPending,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	err = s.repo.Create(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	slog.Info("goal created", "goal_id", goal.ID, "frequency", goal.Frequency, "deadline", goal.Deadline)
	return goal, nil
}

// Complete marks the goal named by a signed completion token as achieved.
func (s *GoalService) Complete(ctx context.Context, token string) (*model.Goal, error) {
	goalID, err := s.tokens.VerifyCompletionToken(token)
	if err != nil {
		return nil, err
	}

	goal, err := s.repo.ByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	if goal.Completed {
		return goal, ErrGoalAlreadyCompleted
	}

	err = s.repo.MarkCompleted(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete goal: %w", err)
	}
	goal.Completed = true

	slog.Info("goal completed", "goal_id", goalID)
	return goal, nil
}
