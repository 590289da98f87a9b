package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository/sqlite"
)

func TestSelfRewardSuppression(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindPractice)

	outcome, err := env.completions.Record(env.ctx, owner, post.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Rewarded)
	assert.Equal(t, RewardReasonSelfCompletion, outcome.Reason)

	_, err = env.store.GetLedger(env.ctx, owner)
	assert.ErrorIs(t, err, repository.ErrNotFound, "no credit change for self completion")

	notes, err := env.store.ListNotifications(env.ctx, owner, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)

	again, err := env.completions.Record(env.ctx, owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, RewardReasonSelfCompletion, again.Reason)
}

func TestRewardIdempotencePerEvent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	completer := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindPractice)

	outcome, err := env.completions.Record(env.ctx, completer, post.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Rewarded)
	require.NotNil(t, outcome.NotificationID)

	replay, err := env.completions.Record(env.ctx, completer, post.ID)
	require.NoError(t, err)
	assert.False(t, replay.Rewarded)
	assert.Equal(t, RewardReasonAlreadyRewarded, replay.Reason)

	ledger, err := env.store.GetLedger(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.PracticeCredits)
	assert.Zero(t, ledger.ExamCredits)

	notes, err := env.store.ListNotifications(env.ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, *outcome.NotificationID, notes[0].ID)
	assert.Equal(t, models.NotificationTargetPost, notes[0].TargetType)
	assert.NotEqual(t, string(models.SessionKindPractice), string(notes[0].TargetType))
}

func TestFireTwiceOnSameCompletionPaysOnce(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	completer := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindExam)

	completion, inserted, err := env.store.RecordCompletion(env.ctx, post.ID, completer, env.now)
	require.NoError(t, err)
	require.True(t, inserted)

	first, err := env.trigger.Fire(env.ctx, completion, post)
	require.NoError(t, err)
	assert.True(t, first.Rewarded)

	// A stale copy of the row still says pending; the store claim rejects it.
	second, err := env.trigger.Fire(env.ctx, completion, post)
	require.NoError(t, err)
	assert.False(t, second.Rewarded)
	assert.Equal(t, RewardReasonDuplicateCompletion, second.Reason)

	ledger, err := env.store.GetLedger(env.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.ExamCredits)
	assert.Zero(t, ledger.PracticeCredits)
}

// User A shares a practice post and user B completes it.
func TestScenarioPracticeShareReward(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, models.TierFree)
	b := env.user(t, models.TierPremium)
	post := env.post(t, a, models.SessionKindPractice)

	_, err := env.credits.Balance(env.ctx, a)
	require.NoError(t, err)

	_, err = env.completions.Record(env.ctx, b, post.ID)
	require.NoError(t, err)

	ledger, err := env.credits.Balance(env.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.PracticeCredits)

	notes, err := env.store.ListNotifications(env.ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationCategoryRewardEarned, notes[0].Category)
	assert.True(t, notes[0].TargetType.Valid())
	assert.Equal(t, post.ID, *notes[0].TargetID)
}

func TestRecordUnknownPost(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.completions.Record(env.ctx, env.user(t, models.TierFree), uuid.New())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

type flakyGrants struct {
	*sqlite.Store
	failures int
	calls    int
}

func (f *flakyGrants) GrantReward(ctx context.Context, g *models.RewardGrant) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("database is locked")
	}
	return f.Store.GrantReward(ctx, g)
}

func TestRewardGrantRetriesTransientFailure(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	completer := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindPractice)

	flaky := &flakyGrants{Store: env.store, failures: 1}
	trigger := NewRewardTrigger(env.store, flaky, nil, 1, zap.NewNop())
	trigger.newBackOff = env.trigger.newBackOff

	completion, _, err := env.store.RecordCompletion(env.ctx, post.ID, completer, env.now)
	require.NoError(t, err)

	outcome, err := trigger.Fire(env.ctx, completion, post)
	require.NoError(t, err)
	assert.True(t, outcome.Rewarded)
	assert.Equal(t, 2, flaky.calls)
}

func TestRewardGrantGivesUpAndStaysPending(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	completer := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindPractice)

	flaky := &flakyGrants{Store: env.store, failures: rewardGrantTries}
	trigger := NewRewardTrigger(env.store, flaky, nil, 1, zap.NewNop())
	trigger.newBackOff = env.trigger.newBackOff

	completion, _, err := env.store.RecordCompletion(env.ctx, post.ID, completer, env.now)
	require.NoError(t, err)

	_, err = trigger.Fire(env.ctx, completion, post)
	require.Error(t, err)
	assert.Equal(t, rewardGrantTries, flaky.calls)

	// The row is still pending, so re-recording the event pays out.
	outcome, err := env.completions.Record(env.ctx, completer, post.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Rewarded)
}

func TestRewardNotificationIsPushed(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, models.TierFree)
	completer := env.user(t, models.TierFree)
	post := env.post(t, owner, models.SessionKindExam)

	sub := env.redis.Subscribe(env.ctx, UserUpdatesChannel(owner))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(env.ctx)
	require.NoError(t, err)

	_, err = env.completions.Record(env.ctx, completer, post.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(env.ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var ws struct {
		Type    string              `json:"type"`
		Payload models.Notification `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ws))
	assert.Equal(t, "notification", ws.Type)
	assert.Equal(t, owner, ws.Payload.UserID)
	assert.Equal(t, models.NotificationTargetPost, ws.Payload.TargetType)
}
