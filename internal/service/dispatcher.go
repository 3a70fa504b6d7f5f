package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mailgoal/mailgoal/internal/clock"
	"github.com/mailgoal/mailgoal/internal/content"
	"github.com/mailgoal/mailgoal/internal/events"
	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/queue"
	"github.com/mailgoal/mailgoal/internal/repository"
	"github.com/mailgoal/mailgoal/internal/schedule"
	"github.com/mailgoal/mailgoal/internal/storage"
	"github.com/mailgoal/mailgoal/internal/validation"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrBatchInProgress  = errors.New("a dispatch batch is already running")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

const (
	DefaultPacing             = time.Second
	DefaultStoreWriteAttempts = 3
)

// GoalStore is the part of the goal repository a batch run needs.
type GoalStore interface {
	OpenGoals(ctx context.Context) ([]*model.Goal, error)
	UpdateSchedule(ctx context.Context, goalID string, update model.ScheduleUpdate) error
}

// Dispatcher runs reminder batches: it selects due goals, obtains content for
// each through a rate-limited queue, delivers it and advances the schedule.
// Goals are processed one at a time in store order.
type Dispatcher struct {
	store    GoalStore
	policy   *schedule.Policy
	producer queue.Producer
	sender   Sender
	secret   string

	clock         clock.Clock
	logger        *slog.Logger
	pacing        time.Duration
	gate          *queue.Gate
	minInterval   time.Duration
	writeAttempts int
	retryInterval time.Duration
	tokens        *TokenService
	appURL        string
	archive       storage.ReportArchive
	publisher     events.Publisher
	producerName  string

	running atomic.Bool
}

type DispatcherOption func(*Dispatcher)

// WithPacing sets the delay between two goals of a batch.
func WithPacing(d time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithGenerationInterval sets the minimum spacing of generation calls.
func WithGenerationInterval(d time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		if d >= 0 {
			s.minInterval = d
		}
	}
}

// WithGenerationGate shares generation call spacing with other callers of the
// backend. The gate's interval then replaces WithGenerationInterval.
func WithGenerationGate(g *queue.Gate) DispatcherOption {
	return func(s *Dispatcher) {
		s.gate = g
	}
}

// WithStoreWriteAttempts bounds the schedule write retries. The first
// retry waits retryInterval and later ones back off exponentially.
func WithStoreWriteAttempts(attempts int, retryInterval time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		if attempts > 0 {
			s.writeAttempts = attempts
		}
		if retryInterval > 0 {
			s.retryInterval = retryInterval
		}
	}
}

func WithDispatchClock(c clock.Clock) DispatcherOption {
	return func(s *Dispatcher) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(s *Dispatcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompletionLinks adds a signed "mark as achieved" link to every reminder.
func WithCompletionLinks(tokens *TokenService, appURL string) DispatcherOption {
	return func(s *Dispatcher) {
		s.tokens = tokens
		s.appURL = strings.TrimSuffix(appURL, "/")
	}
}

func WithReportArchive(a storage.ReportArchive) DispatcherOption {
	return func(s *Dispatcher) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithEventPublisher publishes one event per goal outcome and one per batch.
func WithEventPublisher(p events.Publisher, producerName string) DispatcherOption {
	return func(s *Dispatcher) {
		if p != nil {
			s.publisher = p
			s.producerName = producerName
		}
	}
}

func NewDispatcher(store GoalStore, policy *schedule.Policy, producer queue.Producer, sender Sender, secret string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:         store,
		policy:        policy,
		producer:      producer,
		sender:        sender,
		secret:        secret,
		clock:         clock.System{},
		logger:        slog.Default(),
		pacing:        DefaultPacing,
		minInterval:   queue.DefaultMinInterval,
		writeAttempts: DefaultStoreWriteAttempts,
		retryInterval: 500 * time.Millisecond,
		archive:       storage.NopArchive{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.publisher == nil {
		d.publisher = events.NewFallback(d.logger)
	}
	return d
}

// Authorize checks a caller-supplied secret. An unset secret rejects everyone.
func (d *Dispatcher) Authorize(secret string) error {
	if d.secret == "" || secret == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(d.secret), []byte(secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Run authorizes the caller, loads the open goals and dispatches a batch.
// Only one run may be in flight.
func (d *Dispatcher) Run(ctx context.Context, secret string) (*model.BatchReport, error) {
	if err := d.Authorize(secret); err != nil {
		return nil, err
	}

	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	defer d.running.Store(false)

	goals, err := d.store.OpenGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}

	return d.RunBatch(ctx, goals), nil
}

// RunBatch dispatches reminders for the due goals among goals. Every due goal
// ends up in exactly one of the report's lists.
func (d *Dispatcher) RunBatch(ctx context.Context, goals []*model.Goal) *model.BatchReport {
	startedAt := d.clock.Now()
	today := d.policy.Today(startedAt)
	report := model.NewBatchReport(uuid.NewString(), startedAt)
	log := d.logger.With("batch_id", report.BatchID)

	goals = lo.Filter(goals, func(g *model.Goal, _ int) bool { return g != nil })
	report.Scanned = len(goals)

	var due []*model.Goal
	for _, goal := range goals {
		ok, err := d.policy.GoalDue(goal, today)
		if err != nil {
			log.Warn("skipping goal with invalid schedule", "goal_id", goal.ID, "error", err)
			report.Add(failure(goal, err))
			continue
		}
		if ok {
			due = append(due, goal)
		}
	}
	report.Due = len(due)

	log.Info("dispatch batch started", "scanned", report.Scanned, "due", report.Due, "today", today.Format(schedule.DateLayout))

	q := queue.New(d.producer,
		queue.WithMinInterval(d.minInterval),
		queue.WithGate(d.gate),
		queue.WithClock(d.clock),
		queue.WithLogger(log),
	)
	q.Start(ctx)
	defer q.Close()

	for i, goal := range due {
		if i > 0 && d.pacing > 0 {
			if err := d.clock.Sleep(ctx, d.pacing); err != nil {
				for _, rest := range due[i:] {
					report.Add(failure(rest, fmt.Errorf("batch interrupted: %w", err)))
				}
				break
			}
		}

		result := d.dispatch(ctx, q, goal, today)
		report.Add(result)

		if result.Outcome == model.OutcomeSuccess {
			log.Info("reminder sent", "goal_id", goal.ID, "message_id", result.DeliveryID)
		} else {
			log.Warn("reminder failed", "goal_id", goal.ID, "error", result.Error)
		}
	}

	report.Timestamp = d.clock.Now()

	// The batch deadline may already have passed; the report still goes out.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	d.finish(finishCtx, log, report)

	return report
}

func (d *Dispatcher) dispatch(ctx context.Context, q *queue.Queue, goal *model.Goal, today time.Time) model.DispatchResult {
	if err := ctx.Err(); err != nil {
		return failure(goal, fmt.Errorf("batch interrupted: %w", err))
	}

	deadline, err := d.policy.ParseDeadline(goal.Deadline)
	if err != nil {
		return failure(goal, err)
	}

	next, err := d.policy.NextEligibleDate(goal.Frequency, today)
	if err != nil {
		return failure(goal, err)
	}
	// Never schedule past the deadline while it is still ahead.
	if deadline.After(today) && next.After(deadline) {
		next = deadline
	}

	pending, err := q.Enqueue(queue.Item{GoalID: goal.ID, Snapshot: content.NewSnapshot(goal, deadline, today)})
	if err != nil {
		return failure(goal, err)
	}

	c, err := pending.Wait(ctx)
	if err != nil {
		return failure(goal, fmt.Errorf("batch interrupted: %w", err))
	}

	err = validation.ValidateEmail(goal.Email)
	if err != nil {
		return failure(goal, fmt.Errorf("%w: %s", ErrInvalidRecipient, err))
	}

	if d.tokens != nil {
		token, err := d.tokens.GenerateCompletionToken(goal.ID)
		if err != nil {
			d.logger.Warn("failed to sign completion link", "goal_id", goal.ID, "error", err)
		} else {
			c = withCompletionLink(c, d.appURL+"/goals/complete/"+token)
		}
	}

	deliveryID, err := d.sender.Send(ctx, Message{
		GoalID:  goal.ID,
		To:      goal.Email,
		Subject: c.Subject,
		HTML:    c.HTML,
		Text:    c.Text,
	})
	if err != nil {
		return failure(goal, fmt.Errorf("delivery failed: %w", err))
	}

	// Stored as UTC instants: TIMESTAMP columns drop the zone on some drivers.
	update := model.ScheduleUpdate{
		LastSent: d.clock.Now().UTC(),
		NextSend: next.UTC(),
		Status:   model.GoalStatusActive,
	}

	err = d.writeSchedule(ctx, goal.ID, update)
	if err != nil {
		result := failure(goal, fmt.Errorf("delivered but schedule update failed: %w", err))
		result.DeliveryID = deliveryID
		return result
	}

	return model.DispatchResult{
		GoalID:     goal.ID,
		Email:      goal.Email,
		Outcome:    model.OutcomeSuccess,
		NextSend:   &next,
		DeliveryID: deliveryID,
	}
}

func (d *Dispatcher) writeSchedule(ctx context.Context, goalID string, update model.ScheduleUpdate) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retryInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.writeAttempts-1)), ctx)

	op := func() error {
		err := d.store.UpdateSchedule(ctx, goalID, update)
		if errors.Is(err, repository.ErrGoalNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("schedule update failed, retrying", "goal_id", goalID, "error", err, "retry_in", wait)
	}

	return backoff.RetryNotify(op, b, notify)
}

// finish archives the report and publishes its events. Both are best effort.
func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, report *model.BatchReport) {
	key, err := d.archive.Archive(ctx, report)
	if err != nil {
		log.Warn("failed to archive batch report", "error", err)
	} else if key != "" {
		log.Debug("batch report archived", "key", key)
	}

	results := append(append([]model.DispatchResult{}, report.Successes...), report.Failures...)
	for _, result := range results {
		eventType := events.TypeReminderSent
		if result.Outcome != model.OutcomeSuccess {
			eventType = events.TypeReminderFailed
		}
		d.publish(ctx, log, eventType, report, result)
	}
	d.publish(ctx, log, events.TypeBatchCompleted, report, map[string]any{
		"batchId":    report.BatchID,
		"scanned":    report.Scanned,
		"due":        report.Due,
		"successes":  len(report.Successes),
		"failures":   len(report.Failures),
		"failedIds":  lo.Map(report.Failures, func(r model.DispatchResult, _ int) string { return r.GoalID }),
		"finishedAt": report.Timestamp,
	})

	log.Info("dispatch batch finished",
		"scanned", report.Scanned,
		"due", report.Due,
		"sent", len(report.Successes),
		"failed", len(report.Failures),
		"duration_ms", report.Timestamp.Sub(report.StartedAt).Milliseconds(),
	)
}

func (d *Dispatcher) publish(ctx context.Context, log *slog.Logger, eventType string, report *model.BatchReport, data any) {
	env := events.NewEnvelope(eventType, d.producerName, report.BatchID, d.clock.Now(), data)
	if err := d.publisher.Publish(ctx, eventType, env); err != nil {
		log.Warn("failed to publish dispatch event", "type", eventType, "error", err)
	}
}

func failure(goal *model.Goal, err error) model.DispatchResult {
	return model.DispatchResult{
		GoalID:  goal.ID,
		Email:   goal.Email,
		Outcome: model.OutcomeFailure,
		Error:   err.Error(),
	}
}
