package models

import (
	"time"

	"github.com/google/uuid"
)

// SharedPost is owned by the forum/sharing subsystem; this service only reads it.
type SharedPost struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"userId"`
	Title            string     `json:"title"`
	SharedExamID     *uuid.UUID `json:"sharedExamId,omitempty"`
	SharedPracticeID *uuid.UUID `json:"sharedPracticeId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ContentKind is exam when the post links a shared exam, practice otherwise.
func (p *SharedPost) ContentKind() SessionKind {
	if p.SharedExamID != nil {
		return SessionKindExam
	}
	return SessionKindPractice
}

type RewardStatus string

const (
	RewardStatusPending RewardStatus = "pending"
	RewardStatusGranted RewardStatus = "granted"
	RewardStatusSkipped RewardStatus = "skipped"
)

type ShareCompletion struct {
	ID           uuid.UUID    `json:"id"`
	PostID       uuid.UUID    `json:"postId"`
	UserID       uuid.UUID    `json:"userId"`
	RewardStatus RewardStatus `json:"rewardStatus"`
	RewardedAt   *time.Time   `json:"rewardedAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// CompletionEvent is the message other services put on the completion queue.
type CompletionEvent struct {
	CompleterUserID uuid.UUID `json:"completerUserId"`
	PostID          uuid.UUID `json:"postId"`
	Attempts        int       `json:"attempts,omitempty"`
}
