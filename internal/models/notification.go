package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTargetType mirrors the CHECK constraint on notifications.target_type.
type NotificationTargetType string

const (
	NotificationTargetPost    NotificationTargetType = "post"
	NotificationTargetComment NotificationTargetType = "comment"
	NotificationTargetReport  NotificationTargetType = "report"
	NotificationTargetReward  NotificationTargetType = "reward"
)

func (t NotificationTargetType) Valid() bool {
	switch t {
	case NotificationTargetPost, NotificationTargetComment, NotificationTargetReport, NotificationTargetReward:
		return true
	}
	return false
}

const NotificationCategoryRewardEarned = "reward_earned"

type Notification struct {
	ID         uuid.UUID              `json:"id"`
	UserID     uuid.UUID              `json:"userId"`
	Category   string                 `json:"category"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	TargetType NotificationTargetType `json:"targetType"`
	TargetID   *uuid.UUID             `json:"targetId,omitempty"`
	ReadAt     *time.Time             `json:"readAt,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
