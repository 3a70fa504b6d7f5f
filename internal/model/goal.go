package model

import (
	"time"
)

const (
	GoalStatusPending = "pending"
	GoalStatusActive  = "active"
	GoalStatusSent    = "sent"
)

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// Personas shape the voice of a reminder. Unknown tones use the default template.
const (
	ToneElon   = "elon"
	ToneJobs   = "jobs"
	ToneSam    = "sam"
	ToneNaval  = "naval"
	ToneFuture = "future"
)

var Frequencies = []string{FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly}

var Tones = []string{ToneElon, ToneJobs, ToneSam, ToneNaval, ToneFuture}

type Goal struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Goal      string     `db:"goal" json:"goal"`
	Deadline  string     `db:"deadline" json:"deadline"` // YYYY-MM-DD
	Frequency string     `db:"frequency" json:"frequency"`
	Tone      string     `db:"tone" json:"tone"`
	Completed bool       `db:"completed" json:"completed"`
	Status    string     `db:"status" json:"status"`
	LastSent  *time.Time `db:"last_sent" json:"lastSent"`
	NextSend  *time.Time `db:"next_send" json:"nextSend"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// ScheduleUpdate is the partial write applied after a successful delivery.
type ScheduleUpdate struct {
	LastSent time.Time
	NextSend time.Time
	Status   string
}
