package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, category, title, message, target_type, target_id, read_at, created_at
		FROM notifications WHERE user_id = ?1
		ORDER BY created_at DESC
		LIMIT ?2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		n := &models.Notification{}
		var targetType string
		var readAt sql.NullInt64
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &targetType, &n.TargetID, &readAt, &created); err != nil {
			return nil, err
		}
		n.TargetType = models.NotificationTargetType(targetType)
		n.ReadAt = timePtr(readAt)
		n.CreatedAt = fromMillis(created)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, ?3)
		WHERE id = ?1 AND user_id = ?2`, id, userID, toMillis(at))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
