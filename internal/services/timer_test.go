package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

func TestTimerNonNegativity(t *testing.T) {
	total := 7200
	tests := []struct {
		spent     int
		remaining int
		expired   bool
	}{
		{0, 7200, false},
		{7199, 1, false},
		{7200, 0, true},
		{7201, 0, true},
		{100000, 0, true},
	}

	var timer TimerCoordinator
	for _, tc := range tests {
		s := &models.Session{
			Kind:                 models.SessionKindExam,
			Status:               models.SessionStatusInProgress,
			TimeSpentSeconds:     tc.spent,
			TotalDurationSeconds: &total,
		}
		snap := timer.Snapshot(s)
		require.NotNil(t, snap.RemainingSeconds)
		assert.Equal(t, tc.remaining, *snap.RemainingSeconds, "spent=%d", tc.spent)
		assert.GreaterOrEqual(t, *snap.RemainingSeconds, 0)
		assert.Equal(t, tc.expired, snap.IsExpired, "spent=%d", tc.spent)
	}
}

func TestTimerPausedExamShowsFrozenRemaining(t *testing.T) {
	total := 7200
	frozen := 4000
	now := time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC)
	s := &models.Session{
		Kind:                 models.SessionKindExam,
		Status:               models.SessionStatusPaused,
		PausedAt:             &now,
		TimeSpentSeconds:     3000,
		RemainingTimeSeconds: &frozen,
		TotalDurationSeconds: &total,
	}

	var timer TimerCoordinator
	snap := timer.Snapshot(s)
	assert.Equal(t, 4000, *snap.RemainingSeconds)
	assert.False(t, snap.IsExpired)
	assert.Equal(t, 90, timer.PausedFor(s, now.Add(90*time.Second)))
	assert.Equal(t, 0, timer.PausedFor(s, now.Add(-time.Second)))
}

func TestTimerPracticeHasNoCountdown(t *testing.T) {
	var timer TimerCoordinator
	snap := timer.Snapshot(&models.Session{
		Kind:             models.SessionKindPractice,
		Status:           models.SessionStatusInProgress,
		TimeSpentSeconds: 999999,
	})
	assert.Nil(t, snap.RemainingSeconds)
	assert.False(t, snap.IsExpired)
	assert.Equal(t, 999999, snap.TimeSpentSeconds)
}
