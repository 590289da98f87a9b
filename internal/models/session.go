package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionKind string

const (
	SessionKindExam     SessionKind = "exam"
	SessionKindPractice SessionKind = "practice"
)

func (k SessionKind) Valid() bool {
	return k == SessionKindExam || k == SessionKindPractice
}

type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusAbandoned  SessionStatus = "abandoned"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusInProgress, SessionStatusPaused, SessionStatusCompleted, SessionStatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusAbandoned
}

type Session struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               uuid.UUID     `json:"userId"`
	Kind                 SessionKind   `json:"kind"`
	Status               SessionStatus `json:"status"`
	Category             *string       `json:"category,omitempty"`
	QuestionIDs          []string      `json:"questionIds"`
	TotalQuestions       int           `json:"totalQuestions"`
	AnsweredCount        int           `json:"answeredCount"`
	StartTime            time.Time     `json:"startTime"`
	EndTime              *time.Time    `json:"endTime,omitempty"`
	PausedAt             *time.Time    `json:"pausedAt,omitempty"`
	TimeSpentSeconds     int           `json:"timeSpentSeconds"`
	TimePausedSeconds    int           `json:"timePausedSeconds"`
	RemainingTimeSeconds *int          `json:"remainingTimeSeconds"` // exam only
	TotalDurationSeconds *int          `json:"totalDurationSeconds"` // exam only
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

type TimerSnapshot struct {
	TimeSpentSeconds  int  `json:"timeSpentSeconds"`
	TimePausedSeconds int  `json:"timePausedSeconds"`
	RemainingSeconds  *int `json:"remainingSeconds"`
	IsExpired         bool `json:"isExpired"`
}

type SessionView struct {
	Session *Session      `json:"session"`
	Timer   TimerSnapshot `json:"timer"`
}

type CreateExamRequest struct {
	QuestionIDs []string `json:"questionIds"`
}

type CreatePracticeRequest struct {
	Category      string   `json:"category"`
	QuestionCount int      `json:"questionCount"`
	QuestionIDs   []string `json:"questionIds"`
}

type PauseSessionRequest struct {
	RemainingTimeSeconds *int `json:"remainingTimeSeconds"`
	CurrentTimeSpent     *int `json:"currentTimeSpent"`
}

type TimerAction string

const (
	TimerActionSync   TimerAction = "sync"
	TimerActionPause  TimerAction = "pause"
	TimerActionResume TimerAction = "resume"
)

type TimerUpdateRequest struct {
	Action           TimerAction `json:"action"`
	CurrentTimeSpent *int        `json:"currentTimeSpent"`
	PauseDuration    *int        `json:"pauseDuration"`
}

// SessionCompletedEvent is published for the scoring pipeline.
type SessionCompletedEvent struct {
	SessionID        uuid.UUID   `json:"sessionId"`
	UserID           uuid.UUID   `json:"userId"`
	Kind             SessionKind `json:"kind"`
	AnsweredCount    int         `json:"answeredCount"`
	TotalQuestions   int         `json:"totalQuestions"`
	TimeSpentSeconds int         `json:"timeSpentSeconds"`
	CompletedAt      time.Time   `json:"completedAt"`
}
