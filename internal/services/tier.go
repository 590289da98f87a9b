package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

// TierSource reports a user's subscription tier.
type TierSource interface {
	Tier(ctx context.Context, userID uuid.UUID) (models.Tier, error)
}

// TierResolver reads the billing-maintained plan from the users table through a
// short-lived Redis cache. A nil Redis client disables caching.
type TierResolver struct {
	users  UserStore
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewTierResolver(users UserStore, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *TierResolver {
	return &TierResolver{users: users, redis: redisClient, ttl: ttl, logger: logger}
}

func tierCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_tier:%s", userID.String())
}

func (t *TierResolver) Tier(ctx context.Context, userID uuid.UUID) (models.Tier, error) {
	if t.redis != nil {
		cached, err := t.redis.Get(ctx, tierCacheKey(userID)).Result()
		if err == nil {
			return models.ParseTier(cached), nil
		}
		if !errors.Is(err, redis.Nil) {
			t.logger.Warn("tier cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	tier, err := t.users.GetUserTier(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return "", fmt.Errorf("load user tier: %w", err)
	}

	if t.redis != nil && t.ttl > 0 {
		if err := t.redis.Set(ctx, tierCacheKey(userID), string(tier), t.ttl).Err(); err != nil {
			t.logger.Warn("tier cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return tier, nil
}

// Refresh drops the cached tier and reloads it from the users table. Billing
// calls it after a plan change so quota and share limits apply immediately.
func (t *TierResolver) Refresh(ctx context.Context, userID uuid.UUID) (models.Tier, error) {
	if err := t.Invalidate(ctx, userID); err != nil {
		return "", fmt.Errorf("invalidate tier cache: %w", err)
	}
	return t.Tier(ctx, userID)
}

// Invalidate drops the cached tier.
func (t *TierResolver) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if t.redis == nil {
		return nil
	}
	return t.redis.Del(ctx, tierCacheKey(userID)).Err()
}
