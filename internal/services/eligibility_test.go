package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

func TestEligibilityQuotaRollover(t *testing.T) {
	for _, daysAgo := range []int{7, 8, 30} {
		env := newTestEnv(t)
		user := env.user(t, models.TierFree)
		env.setWeek(t, user, 3, env.now.AddDate(0, 0, -daysAgo))

		status, err := env.eligibility.EvaluateAndReconcile(env.ctx, user)
		require.NoError(t, err)
		assert.True(t, status.IsEligible, "window started %d days ago", daysAgo)
		assert.Equal(t, 0, status.ExamsTakenThisWeek)
		assert.Equal(t, dateOnly(env.now), status.WeekStartDate)

		rec, err := env.store.GetPerformance(env.ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.WeeklyExamCount, "reset must be persisted")
		assert.Equal(t, dateOnly(env.now), rec.WeekStartDate)
	}
}

func TestEligibilityQuotaCeiling(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, models.TierFree)
	weekStart := dateOnly(env.now.AddDate(0, 0, -3))

	env.setWeek(t, user, 3, weekStart)
	status, err := env.eligibility.EvaluateAndReconcile(env.ctx, user)
	require.NoError(t, err)
	assert.False(t, status.IsEligible)
	assert.Equal(t, models.EligibilityReasonLimitReached, status.Reason)
	require.NotNil(t, status.MaxExamsPerWeek)
	assert.Equal(t, 3, *status.MaxExamsPerWeek)
	require.NotNil(t, status.NextEligibleAt)
	assert.Equal(t, weekStart.Add(7*24*time.Hour), *status.NextEligibleAt)

	env.setWeek(t, user, 2, weekStart)
	status, err = env.eligibility.EvaluateAndReconcile(env.ctx, user)
	require.NoError(t, err)
	assert.True(t, status.IsEligible)
	assert.Equal(t, models.EligibilityReasonWithinQuota, status.Reason)
	assert.Nil(t, status.NextEligibleAt)
}

func TestEligibilityMissingRecordStartsToday(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, models.TierFree)

	status, err := env.eligibility.EvaluateAndReconcile(env.ctx, user)
	require.NoError(t, err)
	assert.True(t, status.IsEligible)
	assert.Equal(t, 0, status.ExamsTakenThisWeek)
	assert.Equal(t, dateOnly(env.now), status.WeekStartDate)
}

func TestEligibilityPremiumIsUnlimited(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, models.TierPremium)
	env.setWeek(t, user, 25, env.now.AddDate(0, 0, -1))

	status, err := env.eligibility.EvaluateAndReconcile(env.ctx, user)
	require.NoError(t, err)
	assert.True(t, status.IsEligible)
	assert.Nil(t, status.MaxExamsPerWeek)
	assert.Equal(t, 25, status.ExamsTakenThisWeek)
	assert.Equal(t, models.EligibilityReasonPremium, status.Reason)
}

func TestEligibilityUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.eligibility.EvaluateAndReconcile(env.ctx, uuid.New())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
