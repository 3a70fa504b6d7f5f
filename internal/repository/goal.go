package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mailgoal/mailgoal/internal/model"
)

var (
	ErrGoalNotFound = errors.New("goal not found")
)

type GoalRepository interface {
	Create(ctx context.Context, goal *model.Goal) error
	ByID(ctx context.Context, goalID string) (*model.Goal, error)
	// OpenGoals returns every goal not marked completed, oldest first.
	OpenGoals(ctx context.Context) ([]*model.Goal, error)
	// UpdateSchedule writes last_sent, next_send and status and nothing else.
	UpdateSchedule(ctx context.Context, goalID string, update model.ScheduleUpdate) error
	MarkCompleted(ctx context.Context, goalID string) error
}

type goalRepository struct {
	db *sqlx.DB
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(ctx context.Context, goal *model.Goal) error {
	query := r.db.Rebind(`INSERT INTO goals (id, name, email, goal, deadline, frequency, tone, completed, status, last_sent, next_send, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		goal.ID,
		goal.Name,
		goal.Email,
		goal.Goal,
		goal.Deadline,
		goal.Frequency,
		goal.Tone,
		goal.Completed,
		goal.Status,
		goal.LastSent,
		goal.NextSend,
		goal.CreatedAt,
		goal.UpdatedAt,
	)

	return err
}

func (r *goalRepository) ByID(ctx context.Context, goalID string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := r.db.Rebind(`SELECT * FROM goals WHERE id = ?`)

	err := r.db.GetContext(ctx, goal, query, goalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return goal, nil
}

func (r *goalRepository) OpenGoals(ctx context.Context) ([]*model.Goal, error) {
	goals := []*model.Goal{}
	query := r.db.Rebind(`SELECT * FROM goals WHERE completed = ? ORDER BY created_at ASC, id ASC`)

	err := r.db.SelectContext(ctx, &goals, query, false)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) UpdateSchedule(ctx context.Context, goalID string, update model.ScheduleUpdate) error {
	query := r.db.Rebind(`UPDATE goals
	          SET last_sent = ?, next_send = ?, status = ?, updated_at = ?
	          WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query,
		update.LastSent,
		update.NextSend,
		update.Status,
		time.Now().UTC(),
		goalID,
	)
	if err != nil {
		return err
	}

	return requireRow(result)
}

func (r *goalRepository) MarkCompleted(ctx context.Context, goalID string) error {
	query := r.db.Rebind(`UPDATE goals SET completed = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, true, time.Now().UTC(), goalID)
	if err != nil {
		return err
	}

	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGoalNotFound
	}

	return nil
}
