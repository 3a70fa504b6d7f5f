package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/repository"
)

type memoryGoals struct {
	mu    sync.Mutex
	goals map[string]*model.Goal
}

func newMemoryGoals() *memoryGoals {
	return &memoryGoals{goals: map[string]*model.Goal{}}
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

func (m *memoryGoals) OpenGoals(ctx context.Context) ([]*model.Goal, error) {
	return nil, nil
}

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

func newGoalService(repo repository.GoalRepository) *GoalService {
	s := NewGoalService(repo, NewTokenService("token-secret", time.Hour), time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func validInput() GoalInput {
	return GoalInput{
		Name:      " Grace ",
		Email:     "grace@example.com",
		Goal:      "Publish the compiler paper",
		Deadline:  "01/06/2026",
		Frequency: "Weekly",
		Tone:      "jobs",
	}
}

func TestGoalServiceCreate(t *testing.T) {
	repo := newMemoryGoals()
	s := newGoalService(repo)

	goal, err := s.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, goal.ID)
	assert.Equal(t, "Grace", goal.Name)
	assert.Equal(t, "2026-06-01", goal.Deadline)
	assert.Equal(t, model.FrequencyWeekly, goal.Frequency)
	assert.Equal(t, model.GoalStatusPending, goal.Status)
	assert.Nil(t, goal.LastSent)
	assert.Nil(t, goal.NextSend)

	stored, err := repo.ByID(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.Email, stored.Email)
}

func TestGoalServiceCreateValidation(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*GoalInput)
	}{
		{"name", func(in *GoalInput) { in.Name = "" }},
		{"email", func(in *GoalInput) { in.Email = "grace" }},
		{"goal", func(in *GoalInput) { in.Goal = " " }},
		{"frequency", func(in *GoalInput) { in.Frequency = "hourly" }},
		{"tone", func(in *GoalInput) { in.Tone = "" }},
		{"deadline", func(in *GoalInput) { in.Deadline = "31/02/2026" }},
		{"deadline", func(in *GoalInput) { in.Deadline = "01/01/2026" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := newGoalService(newMemoryGoals()).Create(context.Background(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGoalServiceComplete(t *testing.T) {
	repo := newMemoryGoals()
	s := newGoalService(repo)

	goal, err := s.Create(context.Background(), validInput())
	require.NoError(t, err)

	token, err := s.tokens.GenerateCompletionToken(goal.ID)
	require.NoError(t, err)

	completed, err := s.Complete(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, completed.Completed)

	_, err = s.Complete(context.Background(), token)
	assert.ErrorIs(t, err, ErrGoalAlreadyCompleted)

	_, err = s.Complete(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := s.tokens.GenerateCompletionToken("missing")
	require.NoError(t, err)
	_, err = s.Complete(context.Background(), other)
	assert.ErrorIs(t, err, repository.ErrGoalNotFound)
}

func TestTokenService(t *testing.T) {
	tokens := NewTokenService("token-secret", time.Hour)

	token, err := tokens.GenerateCompletionToken("g1")
	require.NoError(t, err)

	goalID, err := tokens.VerifyCompletionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "g1", goalID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenService("other", time.Hour).VerifyCompletionToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenService("token-secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.VerifyCompletionToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong purpose", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"goal_id": "g1", "purpose": "login"})
		signed, err := raw.SignedString([]byte("token-secret"))
		require.NoError(t, err)
		_, err = tokens.VerifyCompletionToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"goal_id": "g1", "purpose": completionPurpose})
		signed, err := raw.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.VerifyCompletionToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		forever := NewTokenService("token-secret", 0)
		token, err := forever.GenerateCompletionToken("g2")
		require.NoError(t, err)
		goalID, err := forever.VerifyCompletionToken(token)
		require.NoError(t, err)
		assert.Equal(t, "g2", goalID)
	})
}

func TestEmailServiceDevMode(t *testing.T) {
	s := NewEmailService("", "MailGoal <hello@mailgoal.test>", true)

	id, err := s.Send(context.Background(), Message{GoalID: "g1", To: "grace@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dev-"))

	_, err = s.Send(context.Background(), Message{To: "nope"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestEmailServiceNotConfigured(t *testing.T) {
	s := NewEmailService("", "hello@mailgoal.test", false)

	_, err := s.Send(context.Background(), Message{To: "grace@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESEND_API_KEY")
}

func TestEmailServiceSendsThroughResend(t *testing.T) {
	var got resend.SendEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	}))
	defer srv.Close()

	client := resend.NewCustomClient(srv.Client(), "re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	s := NewEmailServiceWithClient(client, "MailGoal <hello@mailgoal.test>")
	id, err := s.Send(context.Background(), Message{
		GoalID:  "g1",
		To:      "grace@example.com",
		Subject: "3 days left: Ship it",
		HTML:    "<p>Go</p>",
		Text:    "Go",
	})
	require.NoError(t, err)
	assert.Equal(t, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794", id)

	assert.Equal(t, []string{"grace@example.com"}, got.To)
	assert.Equal(t, "3 days left: Ship it", got.Subject)
	assert.Equal(t, "<p>Go</p>", got.Html)
	assert.Equal(t, "Go", got.Text)
}
