package models

import "time"

// TrialRecord is the persisted state of one identity's trial for one calendar day.
type TrialRecord struct {
	Identity  string     `json:"identity"`
	Day       string     `json:"day"` // YYYY-MM-DD, local time
	Used      bool       `json:"used"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Key returns the identity:day composite key used by the trial index.
func (r TrialRecord) Key() string {
	return r.Identity + ":" + r.Day
}

// TrialInfo is the trial state shape surfaced to callers.
type TrialInfo struct {
	Eligible    bool       `json:"eligible"`
	UsedToday   bool       `json:"usedToday"`
	RemainingMs int64      `json:"remainingMs"`
	StartTime   *time.Time `json:"startTime,omitempty"`
}
