package models

import "time"

// LifecycleAdvancePayload is the asynq payload that advances one booking's
// lifecycle by one step. Step values are defined in services/lifecycle.
type LifecycleAdvancePayload struct {
	BookingID string `json:"bookingId"`
	Step      string `json:"step"`
}

// ReschedulePayload asks the fan-out task to move every booking tied to a
// class session to a new time.
type ReschedulePayload struct {
	ClassSessionID string    `json:"classSessionId"`
	NewStart       time.Time `json:"newStart"`
	NewEnd         time.Time `json:"newEnd"`
	Reason         string    `json:"reason"`
}

// SweepStats summarizes one completion-sweep run.
type SweepStats struct {
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

// RescheduleResult summarizes one reschedule fan-out run.
type RescheduleResult struct {
	Affected int `json:"affected"`
	Notified int `json:"notified"`
	Errored  int `json:"errored"`
}
