package content

import (
	"strconv"
	"time"

	"github.com/mailgoal/mailgoal/internal/model"
	"github.com/mailgoal/mailgoal/internal/schedule"
)

// Snapshot is the copy of goal fields needed to write one reminder.
type Snapshot struct {
	GoalID    string
	Name      string
	Email     string
	Goal      string
	Tone      string
	Frequency string
	Deadline  time.Time
	Today     time.Time
}

func NewSnapshot(goal *model.Goal, deadline, today time.Time) Snapshot {
	return Snapshot{
		GoalID:    goal.ID,
		Name:      goal.Name,
		Email:     goal.Email,
		Goal:      goal.Goal,
		Tone:      goal.Tone,
		Frequency: goal.Frequency,
		Deadline:  deadline,
		Today:     today,
	}
}

// DaysRemaining is the number of calendar days until the deadline.
// Zero or less means the deadline is today or has passed.
func (s Snapshot) DaysRemaining() int {
	return schedule.DaysBetween(s.Today, s.Deadline)
}

// TimeContext describes the days remaining in words.
func (s Snapshot) TimeContext() string {
	days := s.DaysRemaining()
	switch {
	case days <= 0:
		return "today is the deadline"
	case days == 1:
		return "the deadline is tomorrow"
	default:
		return "there are " + strconv.Itoa(days) + " days left until the deadline"
	}
}

// Content is a rendered reminder.
type Content struct {
	Subject string
	HTML    string
	Text    string
	// Generated is false when the content came from the fallback templates.
	Generated bool
}

func (c Content) Empty() bool {
	return c.Subject == "" || c.HTML == ""
}
