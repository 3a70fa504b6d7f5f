package model

import (
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type DispatchResult struct {
	GoalID     string     `json:"goalId"`
	Email      string     `json:"email,omitempty"`
	Outcome    string     `json:"outcome"`
	NextSend   *time.Time `json:"nextSend,omitempty"`
	DeliveryID string     `json:"messageId,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type BatchReport struct {
	BatchID   string           `json:"batchId"`
	Scanned   int              `json:"scanned"`
	Due       int              `json:"due"`
	Successes []DispatchResult `json:"emailsSent"`
	Failures  []DispatchResult `json:"errors"`
	StartedAt time.Time        `json:"startedAt"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewBatchReport(batchID string, startedAt time.Time) *BatchReport {
	return &BatchReport{
		BatchID:   batchID,
		Successes: []DispatchResult{},
		Failures:  []DispatchResult{},
		StartedAt: startedAt,
	}
}

func (r *BatchReport) Add(result DispatchResult) {
	if result.Outcome == OutcomeSuccess {
		r.Successes = append(r.Successes, result)
		return
	}
	r.Failures = append(r.Failures, result)
}
