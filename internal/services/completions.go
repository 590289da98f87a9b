package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

// CompletionService is the event source for rewards: it records one completion
// row per (post, user) and fires the trigger for that row.
type CompletionService struct {
	posts   PostStore
	trigger *RewardTrigger
	now     func() time.Time
	logger  *zap.Logger
}

func NewCompletionService(posts PostStore, trigger *RewardTrigger, logger *zap.Logger) *CompletionService {
	return &CompletionService{posts: posts, trigger: trigger, now: time.Now, logger: logger}
}

// Record handles a "shared content completed" event. Re-recording a completion
// whose reward is still pending (an earlier attempt failed) fires the trigger
// again; anything already settled is reported without side effects.
func (c *CompletionService) Record(ctx context.Context, completerID, postID uuid.UUID) (*models.RewardOutcome, error) {
	post, err := c.posts.GetSharedPost(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Shared post not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load shared post: %w", err)
	}

	completion, inserted, err := c.posts.RecordCompletion(ctx, post.ID, completerID, c.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	if !inserted {
		c.logger.Debug("completion already recorded",
			zap.String("post_id", postID.String()),
			zap.String("user_id", completerID.String()),
			zap.String("reward_status", string(completion.RewardStatus)))
	}

	return c.trigger.Fire(ctx, completion, post)
}
