package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// SessionStore persists sessions. Every mutating call is a conditional update on
// the expected prior status and returns repository.ErrStateMismatch when the row
// has moved on.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindPausedSession(ctx context.Context, userID uuid.UUID, kind models.SessionKind) (*models.Session, error)
	ListSessions(ctx context.Context, userID uuid.UUID, status models.SessionStatus, limit int) ([]*models.Session, error)
	PauseSession(ctx context.Context, id, userID uuid.UUID, remaining *int, timeSpent int, at time.Time) (*models.Session, error)
	ResumeSession(ctx context.Context, id, userID uuid.UUID, pausedSeconds int, at time.Time) (*models.Session, error)
	SyncSessionTimer(ctx context.Context, id, userID uuid.UUID, timeSpent int, remaining *int, at time.Time) (*models.Session, error)
	RecordAnswer(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Session, error)
	CompleteSession(ctx context.Context, id, userID uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error)
	AbandonSession(ctx context.Context, id uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error)
	ListOverdueExamIDs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]uuid.UUID, error)
}

type PerformanceStore interface {
	GetPerformance(ctx context.Context, userID uuid.UUID) (*models.PerformanceRecord, error)
	ResetWeek(ctx context.Context, userID uuid.UUID, today time.Time) error
}

type CreditStore interface {
	EnsureLedger(ctx context.Context, userID uuid.UUID) error
	GetLedger(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error)
	SpendCredits(ctx context.Context, userID uuid.UUID, ct models.CreditType, amount int) (int, error)
	ResetShareCreditsForUser(ctx context.Context, userID uuid.UUID, limits models.ShareLimits, monthStart, at time.Time) (bool, error)
	ResetShareCreditsForTier(ctx context.Context, tier models.Tier, limits models.ShareLimits, monthStart, at time.Time) (int64, error)
	SetShareLimitOverride(ctx context.Context, userID uuid.UUID, limits models.ShareLimits) error
	GrantReward(ctx context.Context, g *models.RewardGrant) error
}

type PostStore interface {
	GetSharedPost(ctx context.Context, postID uuid.UUID) (*models.SharedPost, error)
	RecordCompletion(ctx context.Context, postID, userID uuid.UUID, at time.Time) (*models.ShareCompletion, bool, error)
	MarkCompletionSkipped(ctx context.Context, completionID uuid.UUID) error
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
}

type UserStore interface {
	GetUserTier(ctx context.Context, userID uuid.UUID) (models.Tier, error)
}
