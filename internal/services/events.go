package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// SessionCompletedChannel is consumed by the scoring pipeline.
const SessionCompletedChannel = "session_completed"

type SessionEventPublisher interface {
	PublishSessionCompleted(ctx context.Context, evt models.SessionCompletedEvent) error
}

type RedisSessionEvents struct {
	redis *redis.Client
}

func NewRedisSessionEvents(redisClient *redis.Client) *RedisSessionEvents {
	return &RedisSessionEvents{redis: redisClient}
}

func (p *RedisSessionEvents) PublishSessionCompleted(ctx context.Context, evt models.SessionCompletedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, SessionCompletedChannel, data).Err()
}
