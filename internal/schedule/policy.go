package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mailgoal/mailgoal/internal/model"
)

var ErrInvalidDeadline = errors.New("invalid deadline")

const DateLayout = "2006-01-02"

// Policy decides when a goal is due for a reminder.
//
// A "day" is always the calendar day in Location. Every comparison goes
// through Day, so DST shifts and host time zones never move a reminder.
type Policy struct {
	Location          *time.Location
	Intervals         Intervals
	StopAfterDeadline bool
}

func NewPolicy(loc *time.Location, intervals Intervals, stopAfterDeadline bool) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	if intervals == nil {
		intervals = DefaultIntervals()
	}
	return &Policy{
		Location:          loc,
		Intervals:         intervals,
		StopAfterDeadline: stopAfterDeadline,
	}
}

// Day truncates t to midnight of its calendar day in the policy location.
func (p *Policy) Day(t time.Time) time.Time {
	y, m, d := t.In(p.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Location)
}

func (p *Policy) Today(now time.Time) time.Time {
	return p.Day(now)
}

// IsDue reports whether a reminder may be sent on today.
func (p *Policy) IsDue(frequency string, lastSent, nextSend *time.Time, deadline, today time.Time) bool {
	today = p.Day(today)
	deadline = p.Day(deadline)

	if p.StopAfterDeadline && today.After(deadline) {
		return false
	}

	// nextSend wins over anything derived from the frequency.
	if nextSend != nil {
		return !today.Before(p.Day(*nextSend))
	}

	if lastSent == nil {
		return true
	}

	if today.Equal(deadline) {
		return true
	}

	last := p.Day(*lastSent)
	if today.Equal(last) {
		return false
	}

	interval, err := p.Intervals.Lookup(frequency)
	if err != nil {
		return false
	}

	if interval.Months > 0 {
		return MonthsBetween(last, today) >= interval.Months
	}
	return DaysBetween(last, today) >= interval.Days
}

// NextEligibleDate advances today by one interval of frequency.
func (p *Policy) NextEligibleDate(frequency string, today time.Time) (time.Time, error) {
	interval, err := p.Intervals.Lookup(frequency)
	if err != nil {
		return time.Time{}, err
	}

	today = p.Day(today)
	if interval.Months > 0 {
		return today.AddDate(0, interval.Months, 0), nil
	}
	return today.AddDate(0, 0, interval.Days), nil
}

// GoalDue applies IsDue to a stored goal. A malformed deadline is an error.
func (p *Policy) GoalDue(goal *model.Goal, today time.Time) (bool, error) {
	deadline, err := p.ParseDeadline(goal.Deadline)
	if err != nil {
		return false, err
	}
	return p.IsDue(goal.Frequency, goal.LastSent, goal.NextSend, deadline, today), nil
}

// ParseDeadline accepts YYYY-MM-DD, or an RFC 3339 timestamp from older rows.
func (p *Policy) ParseDeadline(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDeadline)
	}

	t, err := time.ParseInLocation(DateLayout, value, p.Location)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse(time.RFC3339, value)
	if err == nil {
		return p.Day(t), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDeadline, value)
}

// DaysBetween counts whole calendar days from one day to another.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// MonthsBetween counts calendar month boundaries crossed from one day to another.
func MonthsBetween(from, to time.Time) int {
	fy, fm, _ := from.Date()
	ty, tm, _ := to.Date()
	return (ty-fy)*12 + int(tm) - int(fm)
}
