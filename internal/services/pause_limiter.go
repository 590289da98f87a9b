package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

type PauseDecision struct {
	Allowed              bool
	ConflictingSessionID *uuid.UUID
}

// PauseLimiter allows one paused session per (user, kind). The read here only
// produces a friendly answer; the partial unique index on sessions is what
// actually rejects a racing second pause.
type PauseLimiter struct {
	sessions SessionStore
}

func NewPauseLimiter(sessions SessionStore) *PauseLimiter {
	return &PauseLimiter{sessions: sessions}
}

func (l *PauseLimiter) CanPause(ctx context.Context, userID uuid.UUID, kind models.SessionKind) (PauseDecision, error) {
	paused, err := l.sessions.FindPausedSession(ctx, userID, kind)
	if errors.Is(err, repository.ErrNotFound) {
		return PauseDecision{Allowed: true}, nil
	}
	if err != nil {
		return PauseDecision{}, fmt.Errorf("find paused session: %w", err)
	}
	id := paused.ID
	return PauseDecision{Allowed: false, ConflictingSessionID: &id}, nil
}
