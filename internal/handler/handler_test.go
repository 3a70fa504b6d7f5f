package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoal/mailgoal/internal/config"
	"github.com/mailgoal/mailgoal/internal/content"
	"github.com/mailgoal/mailgoal/internal/ctxkeys"
	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/queue"
	"github.com/mailgoal/mailgoal/internal/repository"
	"github.com/mailgoal/mailgoal/internal/service"
)

type fakeRunner struct {
	secret string
	err    error
	calls  int
	got    string
	ctxErr error
}

func (f *fakeRunner) Run(ctx context.Context, secret string) (*model.BatchReport, error) {
	f.calls++
	f.got = secret
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	if secret != f.secret {
		return nil, service.ErrUnauthorized
	}
	report := model.NewBatchReport("batch-1", time.Date(2026, time.May, 1, 8, 0, 0, 0, time.UTC))
	report.Scanned = 2
	report.Due = 1
	report.Add(model.DispatchResult{GoalID: "g1", Outcome: model.OutcomeSuccess, DeliveryID: "msg-1"})
	report.Timestamp = report.StartedAt.Add(time.Second)
	return report, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSendScheduledWithQuerySecret(t *testing.T) {
	runner := &fakeRunner{secret: "s3cret"}
	h := NewDispatchHandler(runner, time.Minute, false, false, "s3cret")

	rec := httptest.NewRecorder()
	h.SendScheduled(rec, httptest.NewRequest(http.MethodGet, "/api/cron/send-scheduled-emails?secret=s3cret", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "batch-1", body["batchId"])
	assert.EqualValues(t, 2, body["scanned"])
	assert.EqualValues(t, 1, body["due"])
	assert.Len(t, body["emailsSent"], 1)
	assert.Len(t, body["errors"], 0)
	assert.NotEmpty(t, body["timestamp"])
	assert.NoError(t, runner.ctxErr)
}

func TestSendScheduledWithBearer(t *testing.T) {
	runner := &fakeRunner{secret: "s3cret"}
	h := NewDispatchHandler(runner, time.Minute, false, false, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/cron/send-scheduled-emails", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.SendScheduled(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s3cret", runner.got)
}

func TestSendScheduledErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		url    string
		status int
	}{
		{"missing secret", &fakeRunner{secret: "s3cret"}, "/api/cron/send-scheduled-emails", http.StatusUnauthorized},
		{"wrong secret", &fakeRunner{secret: "s3cret"}, "/api/cron/send-scheduled-emails?secret=guess", http.StatusUnauthorized},
		{"in progress", &fakeRunner{err: service.ErrBatchInProgress}, "/api/cron/send-scheduled-emails?secret=s3cret", http.StatusConflict},
		{"store down", &fakeRunner{err: errors.New("failed to load goals: boom")}, "/api/cron/send-scheduled-emails?secret=s3cret", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDispatchHandler(tt.runner, time.Minute, false, false, "s3cret")
			rec := httptest.NewRecorder()
			h.SendScheduled(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, decode(t, rec)["success"])
		})
	}
}

func TestSendScheduledSurvivesClientDisconnect(t *testing.T) {
	runner := &fakeRunner{secret: "s3cret"}
	h := NewDispatchHandler(runner, time.Minute, false, false, "s3cret")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/cron/send-scheduled-emails?secret=s3cret", nil).WithContext(ctx)
	h.SendScheduled(httptest.NewRecorder(), req)

	assert.NoError(t, runner.ctxErr)
}

func TestTestCron(t *testing.T) {
	t.Run("development uses the configured secret", func(t *testing.T) {
		runner := &fakeRunner{secret: "s3cret"}
		h := NewDispatchHandler(runner, time.Minute, true, false, "s3cret")

		rec := httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "s3cret", runner.got)
	})

	t.Run("production disabled", func(t *testing.T) {
		runner := &fakeRunner{secret: "s3cret"}
		h := NewDispatchHandler(runner, time.Minute, false, false, "s3cret")

		rec := httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron?dev_test=true&secret=s3cret", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 0, runner.calls)
	})

	t.Run("production enabled needs dev_test", func(t *testing.T) {
		runner := &fakeRunner{secret: "s3cret"}
		h := NewDispatchHandler(runner, time.Minute, false, true, "s3cret")

		rec := httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron?secret=s3cret", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron?dev_test=true", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron?dev_test=true&secret=wrong", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		h.TestCron(rec, httptest.NewRequest(http.MethodGet, "/api/test-cron?dev_test=true&secret=s3cret", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

type memoryGoals struct {
	mu    sync.Mutex
	goals map[string]*model.Goal
}

func (m *memoryGoals) Create(ctx context.Context, goal *model.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *goal
	m.goals[goal.ID] = &copied
	return nil
}

func (m *memoryGoals) ByID(ctx context.Context, goalID string) (*model.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok {
		return nil, repository.ErrGoalNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *memoryGoals) OpenGoals(ctx context.Context) ([]*model.Goal, error) { return nil, nil }

func (m *memoryGoals) UpdateSchedule(ctx context.Context, goalID string, update model.ScheduleUpdate) error {
	return nil
}

func (m *memoryGoals) MarkCompleted(ctx context.Context, goalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok {
		return repository.ErrGoalNotFound
	}
	g.Completed = true
	return nil
}

func newGoalHandler() (*GoalHandler, *memoryGoals, *service.TokenService) {
	repo := &memoryGoals{goals: map[string]*model.Goal{}}
	tokens := service.NewTokenService("token-secret", time.Hour)
	return NewGoalHandler(service.NewGoalService(repo, tokens, time.UTC)), repo, tokens
}

func futureDeadline() string {
	return time.Now().UTC().AddDate(0, 1, 0).Format("02/01/2006")
}

func TestCreateGoalJSON(t *testing.T) {
	h, repo, _ := newGoalHandler()

	body := `{"name":"Ada","email":"ada@example.com","goal":"Run a marathon","deadline":"` + futureDeadline() + `","frequency":"weekly","tone":"naval"}`
	req := httptest.NewRequest(http.MethodPost, "/api/goals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	id, _ := resp["id"].(string)
	require.NotEmpty(t, id)
	assert.NotEmpty(t, resp["message"])

	stored, err := repo.ByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusPending, stored.Status)
}

func TestCreateGoalForm(t *testing.T) {
	h, _, _ := newGoalHandler()

	form := url.Values{
		"name":      {"Ada"},
		"email":     {"ada@example.com"},
		"goal":      {"Run a marathon"},
		"deadline":  {futureDeadline()},
		"frequency": {"daily"},
		"tone":      {"future"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/goals", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateGoalRejectsInvalidInput(t *testing.T) {
	h, _, _ := newGoalHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/goals", strings.NewReader(`{"name":"Ada","email":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode(t, rec)["field"])

	req = httptest.NewRequest(http.MethodPost, "/api/goals", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteGoal(t *testing.T) {
	h, repo, tokens := newGoalHandler()
	require.NoError(t, repo.Create(context.Background(), &model.Goal{ID: "g1", Name: "Ada", Goal: "Run a marathon"}))

	token, err := tokens.GenerateCompletionToken("g1")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /goals/complete/{token}", h.Complete)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/goals/complete/"+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Congratulations, Ada!")

	stored, _ := repo.ByID(context.Background(), "g1")
	assert.True(t, stored.Completed)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/goals/complete/"+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Already done")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/goals/complete/not-a-token", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing, _ := tokens.GenerateCompletionToken("ghost")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/goals/complete/"+missing, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubGenerator struct {
	enabled bool
	calls   int
}

func (g *stubGenerator) Generate(ctx context.Context, snap content.Snapshot) content.Content {
	g.calls++
	return content.Fallback(snap, "")
}

func (g *stubGenerator) Fallback(snap content.Snapshot) content.Content {
	return content.Fallback(snap, "")
}

func (g *stubGenerator) Enabled() bool { return g.enabled }

type recordingSender struct {
	msgs []service.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg service.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.msgs = append(s.msgs, msg)
	return "msg-test", nil
}

func TestTestEmail(t *testing.T) {
	sender := &recordingSender{}
	h := NewTestEmailHandler(&stubGenerator{}, nil, sender, time.UTC, true)

	rec := httptest.NewRecorder()
	h.Send(rec, httptest.NewRequest(http.MethodGet, "/api/test-email?email=ada@example.com&tone=jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "msg-test", body["messageId"])
	assert.Equal(t, "7 days left: Launch my side project", body["subject"])
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "ada@example.com", sender.msgs[0].To)

	rec = httptest.NewRecorder()
	h.Send(rec, httptest.NewRequest(http.MethodGet, "/api/test-email", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	prod := NewTestEmailHandler(&stubGenerator{}, nil, sender, time.UTC, false)
	rec = httptest.NewRecorder()
	prod.Send(rec, httptest.NewRequest(http.MethodGet, "/api/test-email?email=ada@example.com", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	failing := NewTestEmailHandler(&stubGenerator{}, nil, &recordingSender{err: errors.New("rejected")}, time.UTC, true)
	rec = httptest.NewRecorder()
	failing.Send(rec, httptest.NewRequest(http.MethodGet, "/api/test-email?email=ada@example.com", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTestEmailSharesGenerationGate(t *testing.T) {
	generator := &stubGenerator{enabled: true}
	gate := queue.NewGate(time.Hour)
	h := NewTestEmailHandler(generator, gate, &recordingSender{}, time.UTC, true)

	send := func() {
		rec := httptest.NewRecorder()
		h.Send(rec, httptest.NewRequest(http.MethodGet, "/api/test-email?email=ada@example.com", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	send()
	assert.Equal(t, 1, generator.calls)

	// The slot is taken, so the next sample is a template and no call is made.
	send()
	assert.Equal(t, 1, generator.calls)

	disabled := &stubGenerator{}
	h = NewTestEmailHandler(disabled, queue.NewGate(time.Hour), &recordingSender{}, time.UTC, true)
	send()
	assert.Equal(t, 0, disabled.calls)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(ctxkeys.WithConfig(req.Context(), &config.Config{AppName: "MailGoal", AppEnv: "test"}))

	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).Health(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MailGoal", decode(t, rec)["app"])

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("disk full")}).Health(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}
