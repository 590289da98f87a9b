package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/metrics"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const (
	RewardReasonSelfCompletion      = "self_completion"
	RewardReasonAlreadyRewarded     = "already_rewarded"
	RewardReasonDuplicateCompletion = "duplicate_completion"

	rewardGrantTries = 3
)

// RewardTrigger credits a post owner when someone else completes the shared
// content. The store claims the completion row inside the grant transaction,
// so a retried or replayed event cannot pay twice.
type RewardTrigger struct {
	posts      PostStore
	credits    CreditStore
	notifier   Notifier
	unit       int
	newBackOff func() backoff.BackOff
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewRewardTrigger(posts PostStore, credits CreditStore, notifier Notifier, unit int, logger *zap.Logger) *RewardTrigger {
	return &RewardTrigger{
		posts:    posts,
		credits:  credits,
		notifier: notifier,
		unit:     unit,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			return b
		},
		now:    time.Now,
		logger: logger,
		tracer: otel.Tracer("github.com/hossamSharif/TafawoqWeb-sub004/internal/services"),
	}
}

func rewardNotification(post *models.SharedPost, kind models.SessionKind, unit int) *models.Notification {
	postID := post.ID
	return &models.Notification{
		ID:       uuid.New(),
		UserID:   post.UserID,
		Category: models.NotificationCategoryRewardEarned,
		Title:    "You earned a reward",
		Message:  fmt.Sprintf("Someone completed your shared %s. You received %d %s credit(s).", kind, unit, kind),
		// Always the post: the content kind is not a valid target type.
		TargetType: models.NotificationTargetPost,
		TargetID:   &postID,
	}
}

// Fire applies the reward for one recorded completion of post.
func (t *RewardTrigger) Fire(ctx context.Context, completion *models.ShareCompletion, post *models.SharedPost) (_ *models.RewardOutcome, err error) {
	ctx, span := t.tracer.Start(ctx, "RewardTrigger.Fire")
	span.SetAttributes(
		attribute.String("completion.id", completion.ID.String()),
		attribute.String("post.id", post.ID.String()),
	)
	defer func() { endSpan(span, err) }()

	kind := post.ContentKind()
	outcome := &models.RewardOutcome{
		CompletionID: completion.ID,
		PostID:       post.ID,
		OwnerID:      post.UserID,
		Kind:         kind,
	}

	switch completion.RewardStatus {
	case models.RewardStatusGranted:
		outcome.Reason = RewardReasonAlreadyRewarded
		return outcome, nil
	case models.RewardStatusSkipped:
		outcome.Reason = RewardReasonSelfCompletion
		return outcome, nil
	}

	if completion.UserID == post.UserID {
		if err := t.posts.MarkCompletionSkipped(ctx, completion.ID); err != nil {
			return nil, fmt.Errorf("mark self completion: %w", err)
		}
		metrics.RewardOutcome(string(kind), RewardReasonSelfCompletion)
		outcome.Reason = RewardReasonSelfCompletion
		return outcome, nil
	}

	grant := &models.RewardGrant{
		CompletionID: completion.ID,
		OwnerID:      post.UserID,
		CreditType:   models.RewardCreditType(kind),
		Units:        t.unit,
		Notification: rewardNotification(post, kind, t.unit),
		GrantedAt:    t.now().UTC(),
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := t.credits.GrantReward(ctx, grant)
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			t.logger.Warn("reward grant failed, retrying",
				zap.String("completion_id", completion.ID.String()), zap.Error(err))
		}
		return struct{}{}, err
	}, backoff.WithBackOff(t.newBackOff()), backoff.WithMaxTries(rewardGrantTries))

	if errors.Is(err, repository.ErrAlreadyClaimed) {
		metrics.RewardOutcome(string(kind), RewardReasonDuplicateCompletion)
		outcome.Reason = RewardReasonDuplicateCompletion
		return outcome, nil
	}
	if err != nil {
		metrics.RewardOutcome(string(kind), "error")
		return nil, fmt.Errorf("grant reward: %w", err)
	}

	metrics.RewardOutcome(string(kind), "granted")
	outcome.Rewarded = true
	outcome.NotificationID = &grant.Notification.ID
	t.logger.Info("reward granted",
		zap.String("owner_id", post.UserID.String()),
		zap.String("post_id", post.ID.String()),
		zap.String("kind", string(kind)),
		zap.Int("units", t.unit))

	if t.notifier != nil {
		if err := t.notifier.Notify(ctx, grant.Notification); err != nil {
			t.logger.Warn("reward notification push failed",
				zap.String("notification_id", grant.Notification.ID.String()), zap.Error(err))
		}
	}
	return outcome, nil
}
