package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

type NotificationFeed struct {
	store NotificationStore
	now   func() time.Time
}

func NewNotificationFeed(store NotificationStore) *NotificationFeed {
	return &NotificationFeed{store: store, now: time.Now}
}

func (f *NotificationFeed) List(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	notes, err := f.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

func (f *NotificationFeed) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	err := f.store.MarkNotificationRead(ctx, id, userID, f.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Message: "Notification not found"}
	}
	return err
}
