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

const quotaWindow = 7 * 24 * time.Hour

// EligibilityEvaluator decides whether a user may start another exam this week.
type EligibilityEvaluator struct {
	perf      PerformanceStore
	tiers     TierSource
	freeLimit int
	now       func() time.Time
	logger    *zap.Logger
}

func NewEligibilityEvaluator(perf PerformanceStore, tiers TierSource, freeLimit int, logger *zap.Logger) *EligibilityEvaluator {
	return &EligibilityEvaluator{
		perf:      perf,
		tiers:     tiers,
		freeLimit: freeLimit,
		now:       time.Now,
		logger:    logger,
	}
}

// EvaluateAndReconcile is side-effecting: a window that started seven or more
// days ago is rolled forward to today before the quota is checked. The reset is
// an absolute upsert, so concurrent evaluations may both apply it safely.
func (e *EligibilityEvaluator) EvaluateAndReconcile(ctx context.Context, userID uuid.UUID) (*models.EligibilityStatus, error) {
	tier, err := e.tiers.Tier(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := dateOnly(e.now())
	count, weekStart := 0, today

	rec, err := e.perf.GetPerformance(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load performance record: %w", err)
	case today.Sub(dateOnly(rec.WeekStartDate)) >= quotaWindow:
		if err := e.perf.ResetWeek(ctx, userID, today); err != nil {
			return nil, fmt.Errorf("reset weekly window: %w", err)
		}
		e.logger.Debug("weekly exam window rolled over",
			zap.String("user_id", userID.String()),
			zap.Time("previous_start", rec.WeekStartDate))
	default:
		count, weekStart = rec.WeeklyExamCount, dateOnly(rec.WeekStartDate)
	}

	status := &models.EligibilityStatus{
		IsEligible:         true,
		ExamsTakenThisWeek: count,
		WeekStartDate:      weekStart,
	}

	if tier == models.TierPremium {
		status.Reason = models.EligibilityReasonPremium
		return status, nil
	}

	limit := e.freeLimit
	status.MaxExamsPerWeek = &limit
	if count >= limit {
		next := weekStart.Add(quotaWindow)
		status.IsEligible = false
		status.NextEligibleAt = &next
		status.Reason = models.EligibilityReasonLimitReached
		return status, nil
	}

	status.Reason = models.EligibilityReasonWithinQuota
	return status, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
