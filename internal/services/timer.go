package services

import (
	"time"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// RemainingSeconds is the exam countdown; it never goes negative.
func RemainingSeconds(total, spent int) int {
	if r := total - spent; r > 0 {
		return r
	}
	return 0
}

// TimerCoordinator derives the timer view from persisted session fields.
type TimerCoordinator struct{}

// Snapshot reports the timer for a session. A paused exam shows the remaining
// value frozen at pause time; practice sessions have no countdown.
func (TimerCoordinator) Snapshot(s *models.Session) models.TimerSnapshot {
	snap := models.TimerSnapshot{
		TimeSpentSeconds:  s.TimeSpentSeconds,
		TimePausedSeconds: s.TimePausedSeconds,
	}
	if s.Kind != models.SessionKindExam || s.TotalDurationSeconds == nil {
		return snap
	}

	remaining := RemainingSeconds(*s.TotalDurationSeconds, s.TimeSpentSeconds)
	if s.Status == models.SessionStatusPaused && s.RemainingTimeSeconds != nil {
		remaining = clamp(*s.RemainingTimeSeconds, 0, *s.TotalDurationSeconds)
	}
	snap.RemainingSeconds = &remaining
	snap.IsExpired = remaining <= 0
	return snap
}

// PausedFor is the length of the current pause in whole seconds.
func (TimerCoordinator) PausedFor(s *models.Session, now time.Time) int {
	if s.Status != models.SessionStatusPaused || s.PausedAt == nil {
		return 0
	}
	d := now.Sub(*s.PausedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
