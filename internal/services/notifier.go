package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// Notifier pushes a stored notification to the owner's live connections.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// UserUpdatesChannel is the per-user pub/sub channel the websocket hub listens on.
func UserUpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(redisClient *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: redisClient}
}

func (n *RedisNotifier) Notify(ctx context.Context, note *models.Notification) error {
	data, err := json.Marshal(models.WSMessage{Type: "notification", Payload: note})
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, UserUpdatesChannel(note.UserID), data).Err()
}
