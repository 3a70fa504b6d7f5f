package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoal/mailgoal/internal/model"
)

var today = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time {
	return &t
}

func days(n int) time.Time {
	return today.AddDate(0, 0, n)
}

func TestIsDueFirstReminderAlwaysFires(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	for _, freq := range model.Frequencies {
		assert.True(t, p.IsDue(freq, nil, nil, days(30), today), freq)
	}
}

func TestIsDueOnDeadlineRegardlessOfLastSent(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	lastSents := []*time.Time{nil, ptr(days(-1)), ptr(days(-3)), ptr(days(-40))}
	for _, freq := range model.Frequencies {
		for _, last := range lastSents {
			assert.True(t, p.IsDue(freq, last, nil, today, today), "freq=%s last=%v", freq, last)
		}
	}
}

func TestIsDueNeverTwiceOnSameDay(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	earlierToday := time.Date(2026, time.March, 10, 0, 5, 0, 0, time.UTC)
	for _, freq := range model.Frequencies {
		assert.False(t, p.IsDue(freq, &earlierToday, nil, days(20), today), freq)
	}
}

func TestIsDueFrequencyThresholds(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)
	deadline := days(90)

	tests := []struct {
		name     string
		freq     string
		lastSent time.Time
		want     bool
	}{
		{"daily yesterday", model.FrequencyDaily, days(-1), true},
		{"weekly 6 days", model.FrequencyWeekly, days(-6), false},
		{"weekly 7 days", model.FrequencyWeekly, days(-7), true},
		{"biweekly 2 days", model.FrequencyBiweekly, days(-2), false},
		{"biweekly 3 days", model.FrequencyBiweekly, days(-3), true},
		{"monthly same month", model.FrequencyMonthly, time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC), false},
		{"monthly previous month", model.FrequencyMonthly, time.Date(2026, time.February, 28, 9, 0, 0, 0, time.UTC), true},
		{"monthly same month last year", model.FrequencyMonthly, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), true},
		{"unknown frequency", "hourly", days(-30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsDue(tt.freq, &tt.lastSent, nil, deadline, today))
		})
	}
}

func TestIsDueNextSendIsAuthoritative(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)
	last := days(-30)

	// Frequency says due, nextSend says not yet.
	assert.False(t, p.IsDue(model.FrequencyDaily, &last, ptr(days(1)), days(60), today))

	// nextSend earlier today, time of day ignored.
	nextSend := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)
	assert.True(t, p.IsDue(model.FrequencyMonthly, ptr(days(-1)), &nextSend, days(60), today))

	// Overdue nextSend.
	assert.True(t, p.IsDue(model.FrequencyWeekly, ptr(days(-1)), ptr(days(-2)), days(60), today))
}

func TestIsDueStopsAfterDeadline(t *testing.T) {
	stop := NewPolicy(time.UTC, nil, true)
	keep := NewPolicy(time.UTC, nil, false)

	assert.False(t, stop.IsDue(model.FrequencyDaily, ptr(days(-1)), ptr(days(0)), days(-1), today))
	assert.True(t, keep.IsDue(model.FrequencyDaily, ptr(days(-1)), ptr(days(0)), days(-1), today))
}

func TestEndToEndScenarios(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	t.Run("A first weekly reminder", func(t *testing.T) {
		assert.True(t, p.IsDue(model.FrequencyWeekly, nil, nil, days(10), today))
		next, err := p.NextEligibleDate(model.FrequencyWeekly, today)
		require.NoError(t, err)
		assert.Equal(t, p.Day(days(7)), next)
	})

	t.Run("B weekly sent 3 days ago", func(t *testing.T) {
		assert.False(t, p.IsDue(model.FrequencyWeekly, ptr(days(-3)), nil, days(10), today))
	})

	t.Run("C monthly at deadline", func(t *testing.T) {
		assert.True(t, p.IsDue(model.FrequencyMonthly, ptr(days(-1)), nil, today, today))
	})
}

func TestNextEligibleDateAdvancesStrictly(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	starts := []time.Time{
		today,
		time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 31, 12, 0, 0, 0, time.UTC),
	}

	for _, freq := range model.Frequencies {
		for _, start := range starts {
			next, err := p.NextEligibleDate(freq, start)
			require.NoError(t, err)
			assert.True(t, next.After(p.Day(start)), "freq=%s start=%s next=%s", freq, start, next)
			assert.Equal(t, p.Day(next), next, "next date is midnight")
		}
	}

	_, err := p.NextEligibleDate("yearly", today)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestNextEligibleDateMonthlyUsesCalendarMonths(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	next, err := p.NextEligibleDate(model.FrequencyMonthly, time.Date(2026, time.April, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.May, 15, 0, 0, 0, 0, time.UTC), next)
}

func TestDayUsesPolicyLocationAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p := NewPolicy(ny, nil, true)

	// 03:30 UTC on March 9 is still March 8 in New York.
	now := time.Date(2026, time.March, 9, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 8, 0, 0, 0, 0, ny), p.Today(now))

	// DST starts on March 8 2026: that day is 23 hours long but still one day.
	lastSent := time.Date(2026, time.March, 7, 22, 0, 0, 0, ny)
	assert.True(t, p.IsDue(model.FrequencyDaily, &lastSent, nil, time.Date(2026, time.April, 1, 0, 0, 0, 0, ny), now))

	next, err := p.NextEligibleDate(model.FrequencyWeekly, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, ny), next)
	assert.Equal(t, 7, DaysBetween(p.Today(now), next))
}

func TestGoalDueRejectsMalformedDeadline(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	_, err := p.GoalDue(&model.Goal{Frequency: model.FrequencyDaily, Deadline: "31/12/2026"}, today)
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	due, err := p.GoalDue(&model.Goal{Frequency: model.FrequencyDaily, Deadline: "2026-03-20"}, today)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestParseDeadlineAcceptsLegacyTimestamps(t *testing.T) {
	p := NewPolicy(time.UTC, nil, true)

	d, err := p.ParseDeadline("2026-05-20T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.May, 20, 0, 0, 0, 0, time.UTC), d)

	_, err = p.ParseDeadline("")
	assert.ErrorIs(t, err, ErrInvalidDeadline)
}

func TestParseIntervals(t *testing.T) {
	intervals, err := ParseIntervals("biweekly=14d, monthly=2m,weekly=1w")
	require.NoError(t, err)
	assert.Equal(t, Interval{Days: 14}, intervals[model.FrequencyBiweekly])
	assert.Equal(t, Interval{Months: 2}, intervals[model.FrequencyMonthly])
	assert.Equal(t, Interval{Days: 7}, intervals[model.FrequencyWeekly])
	assert.Equal(t, Interval{Days: 1}, intervals[model.FrequencyDaily])
	assert.Equal(t, "biweekly=14d,daily=1d,monthly=2m,weekly=7d", intervals.String())

	defaults, err := ParseIntervals("")
	require.NoError(t, err)
	assert.Equal(t, DefaultIntervals(), defaults)

	for _, bad := range []string{"daily", "daily=0d", "daily=3y", "daily=xd", "daily=d"} {
		_, err := ParseIntervals(bad)
		assert.Error(t, err, bad)
	}
}

func TestBiweeklyIntervalIsConfigurable(t *testing.T) {
	intervals, err := ParseIntervals("biweekly=14d")
	require.NoError(t, err)
	p := NewPolicy(time.UTC, intervals, true)

	assert.False(t, p.IsDue(model.FrequencyBiweekly, ptr(days(-3)), nil, days(60), today))
	assert.True(t, p.IsDue(model.FrequencyBiweekly, ptr(days(-14)), nil, days(60), today))
}
